package entities

// Location represents a geographic coordinate pair (latitude/longitude).
//
// Go Learning Note — Value Types vs Reference Types:
// Location is a small, immutable data holder. NewLocation returns it by value
// (not a pointer), which is idiomatic for small structs. Value types are copied
// on assignment, which is fine here since Location is only 16 bytes (two float64s).
// Documents, by contrast, are passed as pointers because they carry a map of
// fields and are refreshed in place after an index write.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewLocation creates a Location value from latitude and longitude.
func NewLocation(lat, lng float64) Location {
	return Location{
		Latitude:  lat,
		Longitude: lng,
	}
}

// BoundingBox is an axis-aligned latitude/longitude rectangle. For geohash
// cells the minimum edges are inclusive and the maximum edges exclusive, except
// on the +90/+180 world border.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LngMin float64 `json:"lng_min"`
	LngMax float64 `json:"lng_max"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Location {
	return Location{
		Latitude:  (b.LatMin + b.LatMax) / 2,
		Longitude: (b.LngMin + b.LngMax) / 2,
	}
}

// Contains reports whether the location lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Latitude >= b.LatMin && loc.Latitude <= b.LatMax &&
		loc.Longitude >= b.LngMin && loc.Longitude <= b.LngMax
}
