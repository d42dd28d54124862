package geo

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/tidwall/gjson"

	"geoindex/internal/domain/entities"
)

var (
	// ErrNoLocation means the value carries no location at all.
	ErrNoLocation = errors.New("no location")
	// ErrMalformedLocation means a location value is present but unusable.
	ErrMalformedLocation = errors.New("malformed location")
)

// keyPairs lists the latitude/longitude spellings accepted in loosely-typed
// location values, in lookup order. "_latitude"/"_longitude" is how GeoPoint
// values come out of JSON exports of the upstream document store.
var keyPairs = [][2]string{
	{"latitude", "longitude"},
	{"lat", "lng"},
	{"lat", "lon"},
	{"lat", "long"},
	{"_latitude", "_longitude"},
	{"Latitude", "Longitude"},
}

// NormalizeLocation is the single boundary step that turns whatever a document
// holds in its location field into a validated entities.Location. Accepted
// shapes:
//   - entities.Location or *entities.Location
//   - a map with any of the key pairs above, or a GeoJSON Point
//     ({"type":"Point","coordinates":[lng,lat]})
//   - the same shapes as raw JSON ([]byte, json.RawMessage or string)
//
// nil yields ErrNoLocation. Anything else yields a ValidationError wrapping
// ErrMalformedLocation or ErrInvalidCoordinate.
func NormalizeLocation(v any) (entities.Location, error) {
	var (
		loc entities.Location
		err error
	)

	switch t := v.(type) {
	case nil:
		return entities.Location{}, ErrNoLocation
	case entities.Location:
		loc = t
	case *entities.Location:
		if t == nil {
			return entities.Location{}, ErrNoLocation
		}
		loc = *t
	case map[string]any:
		loc, err = fromMap(t)
	case map[string]float64:
		m := make(map[string]any, len(t))
		for k, f := range t {
			m[k] = f
		}
		loc, err = fromMap(m)
	case json.RawMessage:
		loc, err = fromJSON([]byte(t))
	case []byte:
		loc, err = fromJSON(t)
	case string:
		loc, err = fromJSON([]byte(t))
	default:
		err = malformed(v, "unsupported location type %T", v)
	}
	if err != nil {
		return entities.Location{}, err
	}

	if err := ValidateCoordinate(loc.Latitude, loc.Longitude); err != nil {
		return entities.Location{}, err
	}
	return loc, nil
}

func fromMap(m map[string]any) (entities.Location, error) {
	if typ, _ := m["type"].(string); typ == "Point" {
		return fromGeoJSON(m["coordinates"], m)
	}

	partial := ""
	for _, pair := range keyPairs {
		latRaw, hasLat := m[pair[0]]
		lngRaw, hasLng := m[pair[1]]
		if !hasLat || !hasLng {
			if (hasLat || hasLng) && partial == "" {
				partial = pair[0] + "/" + pair[1]
			}
			continue
		}
		lat, ok := toFloat(latRaw)
		if !ok {
			return entities.Location{}, malformed(m, "%s is not numeric", pair[0])
		}
		lng, ok := toFloat(lngRaw)
		if !ok {
			return entities.Location{}, malformed(m, "%s is not numeric", pair[1])
		}
		return entities.NewLocation(lat, lng), nil
	}
	if partial != "" {
		return entities.Location{}, malformed(m, "incomplete %s pair", partial)
	}
	return entities.Location{}, malformed(m, "no latitude/longitude keys")
}

func fromGeoJSON(coords any, orig any) (entities.Location, error) {
	arr, ok := coords.([]any)
	if !ok || len(arr) < 2 {
		return entities.Location{}, malformed(orig, "GeoJSON point needs [lng, lat] coordinates")
	}
	lng, okLng := toFloat(arr[0])
	lat, okLat := toFloat(arr[1])
	if !okLng || !okLat {
		return entities.Location{}, malformed(orig, "GeoJSON coordinates are not numeric")
	}
	return entities.NewLocation(lat, lng), nil
}

func fromJSON(raw []byte) (entities.Location, error) {
	if !gjson.ValidBytes(raw) {
		return entities.Location{}, malformed(string(raw), "not valid JSON")
	}
	res := gjson.ParseBytes(raw)
	if res.Type == gjson.Null {
		return entities.Location{}, ErrNoLocation
	}
	if !res.IsObject() {
		return entities.Location{}, malformed(string(raw), "location must be a JSON object")
	}

	if res.Get("type").String() == "Point" {
		coords := res.Get("coordinates").Array()
		if len(coords) < 2 || coords[0].Type != gjson.Number || coords[1].Type != gjson.Number {
			return entities.Location{}, malformed(string(raw), "GeoJSON point needs [lng, lat] coordinates")
		}
		return entities.NewLocation(coords[1].Float(), coords[0].Float()), nil
	}

	partial := ""
	for _, pair := range keyPairs {
		lat := res.Get(pair[0])
		lng := res.Get(pair[1])
		if !lat.Exists() || !lng.Exists() {
			if (lat.Exists() || lng.Exists()) && partial == "" {
				partial = pair[0] + "/" + pair[1]
			}
			continue
		}
		if lat.Type != gjson.Number || lng.Type != gjson.Number {
			return entities.Location{}, malformed(string(raw), "%s/%s are not numeric", pair[0], pair[1])
		}
		return entities.NewLocation(lat.Float(), lng.Float()), nil
	}
	if partial != "" {
		return entities.Location{}, malformed(string(raw), "incomplete %s pair", partial)
	}
	return entities.Location{}, malformed(string(raw), "no latitude/longitude keys")
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func malformed(value any, format string, args ...any) error {
	return newValidationError(ErrMalformedLocation, "location", value, format, args...)
}
