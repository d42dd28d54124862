package geo

import (
	"errors"
	"math"
	"testing"

	"geoindex/internal/domain/entities"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lng       float64
		precision int
		want      string
	}{
		{
			name:      "San Francisco",
			lat:       37.7749,
			lng:       -122.4194,
			precision: 6,
			want:      "9q8yyk",
		},
		{
			name:      "New York",
			lat:       40.7128,
			lng:       -74.0060,
			precision: 6,
			want:      "dr5reg",
		},
		{
			name:      "London",
			lat:       51.5074,
			lng:       -0.1278,
			precision: 6,
			want:      "gcpvj0",
		},
		{
			name:      "Rome",
			lat:       41.9028,
			lng:       12.4964,
			precision: 10,
			want:      "sr2ykk5te0",
		},
		{
			name:      "Milan",
			lat:       45.4642,
			lng:       9.1900,
			precision: 6,
			want:      "u0nd9h",
		},
		{
			name:      "Null Island",
			lat:       0,
			lng:       0,
			precision: 4,
			want:      "s000",
		},
		{
			name:      "North-east world corner",
			lat:       90,
			lng:       180,
			precision: 3,
			want:      "zzz",
		},
		{
			name:      "South-west world corner",
			lat:       -90,
			lng:       -180,
			precision: 12,
			want:      "000000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lng, tt.precision)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncode_Validation(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lng       float64
		precision int
		wantField string
		wantKind  error
	}{
		{"latitude too high", 91, 0, 6, "latitude", ErrInvalidCoordinate},
		{"latitude too low", -90.0001, 0, 6, "latitude", ErrInvalidCoordinate},
		{"latitude NaN", math.NaN(), 0, 6, "latitude", ErrInvalidCoordinate},
		{"longitude too high", 0, 180.5, 6, "longitude", ErrInvalidCoordinate},
		{"longitude too low", 0, -181, 6, "longitude", ErrInvalidCoordinate},
		{"precision zero", 0, 0, 0, "precision", ErrInvalidPrecision},
		{"precision thirteen", 0, 0, 13, "precision", ErrInvalidPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.lat, tt.lng, tt.precision)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Encode() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("error %v is not %v", err, tt.wantKind)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		hash      string
		wantLat   float64
		wantLng   float64
		tolerance float64
	}{
		{
			name:      "San Francisco",
			hash:      "9q8yyk",
			wantLat:   37.7749,
			wantLng:   -122.4194,
			tolerance: 0.01,
		},
		{
			name:      "New York",
			hash:      "dr5reg",
			wantLat:   40.7128,
			wantLng:   -74.0060,
			tolerance: 0.01,
		},
		{
			name:      "Upper case input",
			hash:      "DR5REG",
			wantLat:   40.7128,
			wantLng:   -74.0060,
			tolerance: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Center(tt.hash)
			if err != nil {
				t.Fatalf("Center() error = %v", err)
			}
			if math.Abs(got.Latitude-tt.wantLat) > tt.tolerance {
				t.Errorf("Center() lat = %v, want %v", got.Latitude, tt.wantLat)
			}
			if math.Abs(got.Longitude-tt.wantLng) > tt.tolerance {
				t.Errorf("Center() lng = %v, want %v", got.Longitude, tt.wantLng)
			}
		})
	}
}

func TestDecode_BoundingBox(t *testing.T) {
	box, err := Decode("s")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := entities.BoundingBox{LatMin: 0, LatMax: 45, LngMin: 0, LngMax: 45}
	if box != want {
		t.Errorf("Decode(\"s\") = %+v, want %+v", box, want)
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, hash := range []string{"", "abc", "u0n!", "0123456789bcd"} {
		t.Run(hash, func(t *testing.T) {
			_, err := Decode(hash)
			if !errors.Is(err, ErrInvalidGeohash) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidGeohash", hash, err)
			}
		})
	}
}

func TestEncodeDecode_ContainsPoint(t *testing.T) {
	points := []entities.Location{
		{Latitude: 37.7749, Longitude: -122.4194},
		{Latitude: 41.9028, Longitude: 12.4964},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 0, Longitude: 0},
		{Latitude: 90, Longitude: 180},
		{Latitude: -90, Longitude: -180},
		{Latitude: 89.99999, Longitude: -179.99999},
		{Latitude: -45.5, Longitude: 179.5},
	}

	for _, p := range points {
		for precision := MinPrecision; precision <= MaxPrecision; precision++ {
			hash, err := EncodeLocation(p, precision)
			if err != nil {
				t.Fatalf("EncodeLocation(%v, %d) error = %v", p, precision, err)
			}
			if len(hash) != precision {
				t.Errorf("len(%q) = %d, want %d", hash, len(hash), precision)
			}
			box, err := Decode(hash)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", hash, err)
			}
			if !box.Contains(p) {
				t.Errorf("Decode(%q) = %+v does not contain %v", hash, box, p)
			}
		}
	}
}

func TestEncode_PrefixProperty(t *testing.T) {
	full, err := Encode(41.9028, 12.4964, MaxPrecision)
	if err != nil {
		t.Fatal(err)
	}
	for precision := MinPrecision; precision < MaxPrecision; precision++ {
		short, _ := Encode(41.9028, 12.4964, precision)
		if full[:precision] != short {
			t.Errorf("precision %d: %q is not a prefix of %q", precision, short, full)
		}
	}
}

func TestCellSize(t *testing.T) {
	lat, lng := CellSize(1)
	if lat != 45 || lng != 45 {
		t.Errorf("CellSize(1) = %v, %v, want 45, 45", lat, lng)
	}
	lat, lng = CellSize(2)
	if lat != 5.625 || lng != 11.25 {
		t.Errorf("CellSize(2) = %v, %v, want 5.625, 11.25", lat, lng)
	}

	box, _ := Decode("9q8yyk")
	lat, lng = CellSize(6)
	if math.Abs((box.LatMax-box.LatMin)-lat) > 1e-12 || math.Abs((box.LngMax-box.LngMin)-lng) > 1e-12 {
		t.Errorf("CellSize(6) disagrees with decoded cell %+v", box)
	}
}

func TestNeighbor(t *testing.T) {
	center := "9q8yyk"
	box, _ := Decode(center)

	tests := []struct {
		direction string
		check     func(n entities.BoundingBox) bool
	}{
		{"n", func(n entities.BoundingBox) bool { return n.LatMin == box.LatMax && n.LngMin == box.LngMin }},
		{"s", func(n entities.BoundingBox) bool { return n.LatMax == box.LatMin && n.LngMin == box.LngMin }},
		{"e", func(n entities.BoundingBox) bool { return n.LngMin == box.LngMax && n.LatMin == box.LatMin }},
		{"w", func(n entities.BoundingBox) bool { return n.LngMax == box.LngMin && n.LatMin == box.LatMin }},
	}

	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			n := Neighbor(center, tt.direction)
			if n == "" || n == center {
				t.Fatalf("Neighbor(%q, %q) = %q", center, tt.direction, n)
			}
			if len(n) != len(center) {
				t.Errorf("neighbor length %d != center length %d", len(n), len(center))
			}
			nbox, err := Decode(n)
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(nbox) {
				t.Errorf("Neighbor(%q, %q) = %q with box %+v is not adjacent to %+v", center, tt.direction, n, nbox, box)
			}
		})
	}
}

func TestNeighbor_Edges(t *testing.T) {
	// "z" is the north-east precision-1 cell.
	if n := Neighbor("z", "n"); n != "" {
		t.Errorf("Neighbor(z, n) = %q, want no cell beyond the pole", n)
	}
	if e := Neighbor("z", "e"); e != "b" {
		t.Errorf("Neighbor(z, e) = %q, want wrap to b", e)
	}
	if w := Neighbor("b", "w"); w != "z" {
		t.Errorf("Neighbor(b, w) = %q, want wrap to z", w)
	}
	if n := Neighbor("9q8yyk", "up"); n != "" {
		t.Errorf("unknown direction returned %q", n)
	}
	if n := Neighbor("", "n"); n != "" {
		t.Errorf("empty hash returned %q", n)
	}
}

func TestNeighbors(t *testing.T) {
	neighbors := Neighbors("9q8yyk")
	if len(neighbors) != 8 {
		t.Errorf("Expected 8 neighbors, got %d: %v", len(neighbors), neighbors)
	}

	seen := make(map[string]bool)
	for _, n := range neighbors {
		if n == "9q8yyk" {
			t.Error("neighbors must not include the center cell")
		}
		if seen[n] {
			t.Errorf("Duplicate neighbor found: %s", n)
		}
		seen[n] = true
	}

	// A top-row cell has no northern neighbors.
	if got := Neighbors("b"); len(got) != 5 {
		t.Errorf("Neighbors(b) = %v, want 5 cells", got)
	}
}

func TestDistance(t *testing.T) {
	rome := entities.NewLocation(41.9028, 12.4964)
	milan := entities.NewLocation(45.4642, 9.1900)

	tests := []struct {
		name      string
		a, b      entities.Location
		expected  float64
		tolerance float64
	}{
		{"Same location", rome, rome, 0, 0},
		{"Milan to Rome", milan, rome, 477000, 7000},
		{"One degree on the equator", entities.NewLocation(0, 0), entities.NewLocation(0, 1), 111195, 500},
		{"Antipodes", entities.NewLocation(0, 0), entities.NewLocation(0, 180), math.Pi * EarthRadiusMeters, 1},
		{"SF to Oakland", entities.NewLocation(37.7749, -122.4194), entities.NewLocation(37.8044, -122.2712), 13400, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Distance() = %v, expected %v (+/- %v)", got, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]entities.Location{
		{entities.NewLocation(45.4642, 9.1900), entities.NewLocation(41.9028, 12.4964)},
		{entities.NewLocation(-33.8688, 151.2093), entities.NewLocation(51.5074, -0.1278)},
		{entities.NewLocation(89.9, 10), entities.NewLocation(-89.9, -170)},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		if math.Abs(ab-ba) > 1 {
			t.Errorf("Distance not symmetric: %v vs %v", ab, ba)
		}
		if ab <= 0 {
			t.Errorf("Distance(%v, %v) = %v, want > 0", p[0], p[1], ab)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Encode(37.7749, -122.4194, 10)
	}
}

func BenchmarkDecode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Decode("9q8yyk8ytp")
	}
}

func BenchmarkDistance(b *testing.B) {
	a := entities.NewLocation(37.7749, -122.4194)
	c := entities.NewLocation(37.8044, -122.2712)
	for i := 0; i < b.N; i++ {
		Distance(a, c)
	}
}
