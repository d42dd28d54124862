// Package geo implements geohash encoding/decoding, great-circle distance and
// the coverage planner that turns a circular search area into index-key ranges.
//
// Go Learning Note — What is a Geohash?
// A geohash is a way to encode a latitude/longitude pair into a short string.
// The key property is that nearby locations share a common prefix. For example,
// two points 100m apart might both start with "sr2ykk", while a point 10km away
// might start with "sr2yt". This lets a document store answer "everything in
// this cell" with a single lexicographic range scan on one string field.
//
// Precision determines the cell size:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~19 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~2.4 m    12 → ~1.9 cm
//
// Stored documents are indexed at a fixed, fine precision (10 by default);
// queries use a coarser precision chosen from the search radius and match the
// stored keys by prefix.
package geo

import (
	"math"
	"strings"

	"geoindex/internal/domain/entities"
)

const (
	// base32 is the geohash character set (32 characters). Note that 'a', 'i',
	// 'l', and 'o' are excluded to avoid confusion with digits 0/1.
	base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	// MinPrecision and MaxPrecision bound the key length.
	MinPrecision = 1
	MaxPrecision = 12

	// EarthRadiusMeters is the mean Earth radius used by Distance.
	EarthRadiusMeters = 6371000.0
)

// base32Map is the reverse lookup from symbol to its 5-bit value.
var base32Map = map[byte]int{}

func init() {
	for i := 0; i < len(base32); i++ {
		base32Map[base32[i]] = i
	}
}

// ValidateCoordinate checks both bounds. NaN is rejected along with anything
// outside [-90,90] x [-180,180]; values are never clamped.
func ValidateCoordinate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return newValidationError(ErrInvalidCoordinate, "latitude", lat, "must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return newValidationError(ErrInvalidCoordinate, "longitude", lng, "must be between -180 and 180")
	}
	return nil
}

// ValidatePrecision checks that a key length is within [1,12].
func ValidatePrecision(precision int) error {
	if precision < MinPrecision || precision > MaxPrecision {
		return newValidationError(ErrInvalidPrecision, "precision", precision,
			"must be between %d and %d", MinPrecision, MaxPrecision)
	}
	return nil
}

// Validate checks that hash is a non-empty key over the geohash alphabet of at
// most MaxPrecision symbols.
func Validate(hash string) error {
	if hash == "" {
		return newValidationError(ErrInvalidGeohash, "geohash", hash, "must not be empty")
	}
	if len(hash) > MaxPrecision {
		return newValidationError(ErrInvalidGeohash, "geohash", hash,
			"longer than %d symbols", MaxPrecision)
	}
	for i := 0; i < len(hash); i++ {
		if _, ok := base32Map[hash[i]]; !ok {
			return newValidationError(ErrInvalidGeohash, "geohash", hash,
				"symbol %q at position %d is not in the geohash alphabet", hash[i], i)
		}
	}
	return nil
}

// Encode converts latitude and longitude to a geohash string with the given
// precision.
//
// Algorithm overview (binary interleaving):
//  1. Start with the full range: lat [-90, 90], lng [-180, 180]
//  2. Alternate between longitude (even bits) and latitude (odd bits)
//  3. For each step, bisect the range and set bit=1 if value >= midpoint
//  4. Every 5 bits are encoded as one base32 character
//
// Go Learning Note — strings.Builder:
// strings.Builder is the idiomatic way to efficiently build strings in Go.
// It minimizes memory allocations by using an internal byte buffer. Never build
// strings with repeated concatenation (s += "x") in a loop; that creates a new
// string (and allocation) each iteration because Go strings are immutable.
func Encode(lat, lng float64, precision int) (string, error) {
	if err := ValidateCoordinate(lat, lng); err != nil {
		return "", err
	}
	if err := ValidatePrecision(precision); err != nil {
		return "", err
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String(), nil
}

// EncodeLocation is Encode for an entities.Location.
func EncodeLocation(loc entities.Location, precision int) (string, error) {
	return Encode(loc.Latitude, loc.Longitude, precision)
}

// Decode converts a geohash string back to the bounding box of the encoded
// cell by replaying the binary subdivision. Upper-case input is accepted.
func Decode(hash string) (entities.BoundingBox, error) {
	hash = strings.ToLower(hash)
	if err := Validate(hash); err != nil {
		return entities.BoundingBox{}, err
	}

	box := entities.BoundingBox{LatMin: -90, LatMax: 90, LngMin: -180, LngMax: 180}
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd := base32Map[hash[i]]
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (box.LngMin + box.LngMax) / 2
				if bit == 1 {
					box.LngMin = mid
				} else {
					box.LngMax = mid
				}
			} else {
				mid := (box.LatMin + box.LatMax) / 2
				if bit == 1 {
					box.LatMin = mid
				} else {
					box.LatMax = mid
				}
			}
			isEven = !isEven
		}
	}

	return box, nil
}

// Center returns the midpoint of the cell identified by hash.
func Center(hash string) (entities.Location, error) {
	box, err := Decode(hash)
	if err != nil {
		return entities.Location{}, err
	}
	return box.Center(), nil
}

// CellSize returns the height and width, in degrees, of every cell at the
// given precision. Longitude takes the extra bit when 5*precision is odd.
func CellSize(precision int) (latDeg, lngDeg float64) {
	bits := 5 * precision
	lngBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Exp2(float64(latBits)), 360 / math.Exp2(float64(lngBits))
}

// Neighbor returns the geohash of the adjacent cell in the specified direction
// ("n", "s", "e", "w") at the same precision. It steps one cell height or width
// away from the cell center and re-encodes, wrapping longitude across the
// antimeridian. There is no cell beyond a pole, so "n"/"s" at the top/bottom
// row return "". An invalid hash or direction also returns "".
func Neighbor(hash string, direction string) string {
	box, err := Decode(hash)
	if err != nil {
		return ""
	}
	c := box.Center()
	h := box.LatMax - box.LatMin
	w := box.LngMax - box.LngMin

	lat, lng := c.Latitude, c.Longitude
	switch direction {
	case "n":
		lat += h
	case "s":
		lat -= h
	case "e":
		lng += w
	case "w":
		lng -= w
	default:
		return ""
	}

	if lat > 90 || lat < -90 {
		return ""
	}
	lng = wrapLongitude(lng)

	n, err := Encode(lat, lng, len(hash))
	if err != nil {
		return ""
	}
	return n
}

// Neighbors returns the up-to-8 cells surrounding hash (N, S, E, W, NE, NW,
// SE, SW). Cells that do not exist (beyond a pole) are omitted, and duplicates
// that appear at very coarse precisions are removed. Diagonal neighbors are
// computed by chaining two Neighbor calls.
func Neighbors(hash string) []string {
	n := Neighbor(hash, "n")
	s := Neighbor(hash, "s")

	candidates := []string{
		n,
		s,
		Neighbor(hash, "e"),
		Neighbor(hash, "w"),
	}
	if n != "" {
		candidates = append(candidates, Neighbor(n, "e"), Neighbor(n, "w"))
	}
	if s != "" {
		candidates = append(candidates, Neighbor(s, "e"), Neighbor(s, "w"))
	}

	seen := map[string]bool{strings.ToLower(hash): true}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Distance calculates the haversine great-circle distance between two points
// in meters.
func Distance(a, b entities.Location) float64 {
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func wrapLongitude(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
