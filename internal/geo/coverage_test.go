package geo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoindex/internal/domain/entities"
)

func newTestPlanner(t *testing.T, opts PlannerOptions) *CoveragePlanner {
	t.Helper()
	p, err := NewCoveragePlanner(opts, nil)
	require.NoError(t, err)
	return p
}

// destination returns the point reached by travelling dist meters from origin
// on the given bearing (radians).
func destination(origin entities.Location, bearing, dist float64) entities.Location {
	lat1 := origin.Latitude * math.Pi / 180
	lng1 := origin.Longitude * math.Pi / 180
	delta := dist / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	lat := lat2 * 180 / math.Pi
	lng := wrapLongitude(lng2 * 180 / math.Pi)
	return entities.NewLocation(math.Max(-90, math.Min(90, lat)), lng)
}

// samplePoints returns n points inside the circle plus points on its rim.
func samplePoints(rng *rand.Rand, center entities.Location, radius float64, n int) []entities.Location {
	points := []entities.Location{center}
	for i := 0; i < 16; i++ {
		points = append(points, destination(center, float64(i)*math.Pi/8, radius*0.999))
	}
	for i := 0; i < n; i++ {
		d := radius * math.Sqrt(rng.Float64()) * 0.999
		points = append(points, destination(center, rng.Float64()*2*math.Pi, d))
	}
	return points
}

func covered(ranges []CoverageRange, key string) bool {
	for _, r := range ranges {
		if r.Contains(key) {
			return true
		}
	}
	return false
}

func TestRangeForPrefix(t *testing.T) {
	r := RangeForPrefix("sr2yk")
	assert.Equal(t, CoverageRange{StartKey: "sr2yk", EndKey: "sr2yk~"}, r)
	assert.True(t, r.Contains("sr2yk"))
	assert.True(t, r.Contains("sr2ykk5te0"))
	assert.True(t, r.Contains("sr2ykzzzzz"))
	assert.False(t, r.Contains("sr2ym"))
	assert.False(t, r.Contains("sr2yj"))
	assert.Equal(t, "[sr2yk, sr2yk~)", r.String())
}

func TestDefaultPrecisionTable(t *testing.T) {
	table, err := DefaultPrecisionTable().Normalize()
	require.NoError(t, err)

	tests := []struct {
		radius float64
		want   int
	}{
		{1, 8},
		{20, 8},
		{50, 7},
		{150, 7},
		{500, 6},
		{1000, 6},
		{1001, 5},
		{5000, 5},
		{20000, 4},
		{50000, 3},
		{1000000, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0fm", tt.radius), func(t *testing.T) {
			assert.Equal(t, tt.want, table.PrecisionFor(tt.radius))
		})
	}
}

func TestPrecisionTable_Monotonic(t *testing.T) {
	table, err := DefaultPrecisionTable().Normalize()
	require.NoError(t, err)

	prev := MaxPrecision + 1
	for r := 1.0; r <= 2e7; r *= 1.5 {
		p := table.PrecisionFor(r)
		assert.LessOrEqual(t, p, prev, "precision got finer at radius %.0f", r)
		prev = p
	}
}

func TestPrecisionTable_Normalize(t *testing.T) {
	t.Run("sorts rows", func(t *testing.T) {
		table, err := PrecisionTable{
			{MinRadiusMeters: 0, Precision: 9},
			{MinRadiusMeters: 10000, Precision: 4},
			{MinRadiusMeters: 100, Precision: 6},
		}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 4, table.PrecisionFor(50000))
		assert.Equal(t, 6, table.PrecisionFor(500))
		assert.Equal(t, 9, table.PrecisionFor(5))
	})

	t.Run("rejects finer precision for larger radius", func(t *testing.T) {
		_, err := PrecisionTable{
			{MinRadiusMeters: 10000, Precision: 7},
			{MinRadiusMeters: 0, Precision: 5},
		}.Normalize()
		assert.Error(t, err)
	})

	t.Run("rejects out of range precision", func(t *testing.T) {
		_, err := PrecisionTable{{MinRadiusMeters: 0, Precision: 13}}.Normalize()
		assert.ErrorIs(t, err, ErrInvalidPrecision)
	})

	t.Run("rejects empty table", func(t *testing.T) {
		_, err := PrecisionTable{}.Normalize()
		assert.Error(t, err)
	})
}

func TestNewCoveragePlanner(t *testing.T) {
	p := newTestPlanner(t, PlannerOptions{})
	assert.Equal(t, 64, p.maxRanges)
	assert.Equal(t, StrategyGrid, p.strategy)

	_, err := NewCoveragePlanner(PlannerOptions{Strategy: "spiral"}, nil)
	assert.Error(t, err)
}

func TestPlan_Completeness(t *testing.T) {
	centers := map[string]entities.Location{
		"rome":         entities.NewLocation(41.9028, 12.4964),
		"sanfrancisco": entities.NewLocation(37.7749, -122.4194),
		"sydney":       entities.NewLocation(-33.8688, 151.2093),
		"nullisland":   entities.NewLocation(0, 0),
		"antimeridian": entities.NewLocation(10, 179.995),
		"tromso":       entities.NewLocation(69.6492, 18.9553),
		"nearpole":     entities.NewLocation(89.95, 45),
		"southpole":    entities.NewLocation(-89.99, -120),
	}
	radii := []float64{25, 100, 1000, 10000, 250000}

	for _, strategy := range []Strategy{StrategyGrid, StrategyExpand} {
		planner := newTestPlanner(t, PlannerOptions{Strategy: strategy})
		rng := rand.New(rand.NewSource(42))

		for name, center := range centers {
			for _, radius := range radii {
				t.Run(fmt.Sprintf("%s/%s/%.0fm", strategy, name, radius), func(t *testing.T) {
					plan, err := planner.Plan(center, radius, 10)
					require.NoError(t, err)
					require.NotEmpty(t, plan.Ranges)
					assert.LessOrEqual(t, len(plan.Ranges), 64)

					for _, p := range samplePoints(rng, center, radius, 200) {
						require.LessOrEqual(t, Distance(center, p), radius)
						key, err := EncodeLocation(p, 10)
						require.NoError(t, err)
						if !covered(plan.Ranges, key) {
							t.Fatalf("point %v (key %s, %.1fm away) not covered by precision %d plan %v",
								p, key, Distance(center, p), plan.Precision, plan.Ranges)
						}
					}
				})
			}
		}
	}
}

func TestPlan_RangesSortedAndUnique(t *testing.T) {
	planner := newTestPlanner(t, PlannerOptions{})
	plan, err := planner.Plan(entities.NewLocation(41.9028, 12.4964), 1000, 10)
	require.NoError(t, err)

	starts := make([]string, len(plan.Ranges))
	seen := make(map[string]bool)
	for i, r := range plan.Ranges {
		starts[i] = r.StartKey
		assert.False(t, seen[r.StartKey], "duplicate range %s", r)
		seen[r.StartKey] = true
		assert.Equal(t, r.StartKey+RangeTerminator, r.EndKey)
		assert.Len(t, r.StartKey, plan.Precision)
	}
	assert.True(t, sort.StringsAreSorted(starts))
	assert.Equal(t, 6, plan.Precision)
}

func TestPlan_Antimeridian(t *testing.T) {
	planner := newTestPlanner(t, PlannerOptions{})
	center := entities.NewLocation(0, 179.999)
	plan, err := planner.Plan(center, 5000, 10)
	require.NoError(t, err)

	var east, west bool
	for _, r := range plan.Ranges {
		c, err := Center(r.StartKey)
		require.NoError(t, err)
		if c.Longitude > 0 {
			east = true
		} else {
			west = true
		}
	}
	assert.True(t, east, "expected cells east of the antimeridian")
	assert.True(t, west, "expected cells west of the antimeridian")
}

func TestPlan_ClampsToIndexPrecision(t *testing.T) {
	planner := newTestPlanner(t, PlannerOptions{})
	plan, err := planner.Plan(entities.NewLocation(41.9028, 12.4964), 10, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, plan.Precision)
	for _, r := range plan.Ranges {
		assert.Len(t, r.StartKey, 6)
	}
}

func TestPlan_CoarsensOverBudget(t *testing.T) {
	center := entities.NewLocation(41.9028, 12.4964)

	unbounded := newTestPlanner(t, PlannerOptions{MaxRanges: 1000})
	full, err := unbounded.Plan(center, 1000, 10)
	require.NoError(t, err)
	require.Greater(t, len(full.Ranges), 2)

	for _, strategy := range []Strategy{StrategyGrid, StrategyExpand} {
		t.Run(string(strategy), func(t *testing.T) {
			tight := newTestPlanner(t, PlannerOptions{MaxRanges: 2, Strategy: strategy})
			plan, err := tight.Plan(center, 1000, 10)
			require.NoError(t, err)
			assert.Less(t, plan.Precision, full.Precision)
			if plan.Precision > MinPrecision {
				assert.LessOrEqual(t, len(plan.Ranges), 2)
			}
		})
	}
}

func TestPlan_PrecisionOneIgnoresBudget(t *testing.T) {
	planner := newTestPlanner(t, PlannerOptions{MaxRanges: 1})
	plan, err := planner.Plan(entities.NewLocation(0, 0), 3000000, 10)
	require.NoError(t, err)
	assert.Equal(t, MinPrecision, plan.Precision)
	assert.Greater(t, len(plan.Ranges), 1)
}

func TestPlan_Validation(t *testing.T) {
	planner := newTestPlanner(t, PlannerOptions{})
	rome := entities.NewLocation(41.9028, 12.4964)

	tests := []struct {
		name      string
		center    entities.Location
		radius    float64
		precision int
		wantField string
		wantKind  error
	}{
		{"zero radius", rome, 0, 10, "radius", ErrInvalidRadius},
		{"negative radius", rome, -5, 10, "radius", ErrInvalidRadius},
		{"NaN radius", rome, math.NaN(), 10, "radius", ErrInvalidRadius},
		{"infinite radius", rome, math.Inf(1), 10, "radius", ErrInvalidRadius},
		{"bad latitude", entities.NewLocation(91, 0), 100, 10, "latitude", ErrInvalidCoordinate},
		{"bad longitude", entities.NewLocation(0, 181), 100, 10, "longitude", ErrInvalidCoordinate},
		{"bad index precision", rome, 100, 13, "precision", ErrInvalidPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planner.Plan(tt.center, tt.radius, tt.precision)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestSearchBox(t *testing.T) {
	t.Run("single interval", func(t *testing.T) {
		box := searchBox(entities.NewLocation(41.9028, 12.4964), 1000)
		require.Len(t, box.lngIntervals, 1)
		assert.InDelta(t, 41.9028-1000.0/111000, box.latMin, 1e-9)
		assert.Less(t, box.lngIntervals[0][0], 12.4964)
		assert.Greater(t, box.lngIntervals[0][1], 12.4964)
	})

	t.Run("antimeridian split", func(t *testing.T) {
		box := searchBox(entities.NewLocation(0, -179.99), 5000)
		require.Len(t, box.lngIntervals, 2)
		assert.Equal(t, 180.0, box.lngIntervals[0][1])
		assert.Equal(t, -180.0, box.lngIntervals[1][0])
	})

	t.Run("pole spans all longitudes", func(t *testing.T) {
		box := searchBox(entities.NewLocation(89.99, 10), 5000)
		assert.Equal(t, [][2]float64{{-180, 180}}, box.lngIntervals)
		assert.Equal(t, 90.0, box.latMax)
	})

	t.Run("high latitude is wider than planar", func(t *testing.T) {
		lat := 80.0
		radius := 200000.0
		box := searchBox(entities.NewLocation(lat, 0), radius)
		planar := radius / (metersPerDegree * math.Cos(lat*math.Pi/180))
		assert.GreaterOrEqual(t, box.lngIntervals[0][1], planar)
	})
}

func BenchmarkPlan(b *testing.B) {
	planner, _ := NewCoveragePlanner(PlannerOptions{}, nil)
	center := entities.NewLocation(41.9028, 12.4964)
	for i := 0; i < b.N; i++ {
		planner.Plan(center, 1000, 10)
	}
}
