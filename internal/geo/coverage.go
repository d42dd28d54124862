package geo

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"geoindex/internal/domain/entities"
	"geoindex/internal/logging"
)

// RangeTerminator is appended to a cell key to form the inclusive upper bound
// of its prefix range. '~' sorts after every symbol of the geohash alphabet.
const RangeTerminator = "~"

// metersPerDegree is the planar approximation used for the search box. It is
// slightly smaller than the true 111,195 m per degree of latitude on a sphere of
// EarthRadiusMeters, so the box errs on the large side.
const metersPerDegree = 111000.0

// CoverageRange is a half-open lexicographic interval [StartKey, EndKey) over
// index keys. A range built from a cell key retrieves every document whose key
// has that cell as a prefix.
type CoverageRange struct {
	StartKey string `json:"start_key"`
	EndKey   string `json:"end_key"`
}

// RangeForPrefix returns the range covering every key that starts with prefix.
func RangeForPrefix(prefix string) CoverageRange {
	return CoverageRange{StartKey: prefix, EndKey: prefix + RangeTerminator}
}

// Contains reports whether key falls inside the range.
func (r CoverageRange) Contains(key string) bool {
	return key >= r.StartKey && key < r.EndKey
}

func (r CoverageRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.StartKey, r.EndKey)
}

// PrecisionStep is one row of a PrecisionTable: radii strictly greater than
// MinRadiusMeters use Precision.
type PrecisionStep struct {
	MinRadiusMeters float64 `yaml:"min_radius_meters"`
	Precision       int     `yaml:"precision"`
}

// PrecisionTable maps a search radius to a query precision. Rows are kept in
// descending MinRadiusMeters order; the last row catches every smaller radius.
type PrecisionTable []PrecisionStep

// DefaultPrecisionTable picks the precision whose cells are roughly as wide as
// the radius, so a circle is covered by about a 3x3 block of cells.
func DefaultPrecisionTable() PrecisionTable {
	return PrecisionTable{
		{MinRadiusMeters: 150000, Precision: 2},
		{MinRadiusMeters: 20000, Precision: 3},
		{MinRadiusMeters: 5000, Precision: 4},
		{MinRadiusMeters: 1000, Precision: 5},
		{MinRadiusMeters: 150, Precision: 6},
		{MinRadiusMeters: 20, Precision: 7},
		{MinRadiusMeters: 0, Precision: 8},
	}
}

// Normalize returns a copy sorted by descending MinRadiusMeters and checks
// that precision never gets finer as the radius grows.
func (t PrecisionTable) Normalize() (PrecisionTable, error) {
	if len(t) == 0 {
		return nil, errors.New("precision table is empty")
	}
	out := make(PrecisionTable, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinRadiusMeters > out[j].MinRadiusMeters
	})

	for i, step := range out {
		if err := ValidatePrecision(step.Precision); err != nil {
			return nil, fmt.Errorf("precision table row %d: %w", i, err)
		}
		if step.MinRadiusMeters < 0 || math.IsNaN(step.MinRadiusMeters) {
			return nil, fmt.Errorf("precision table row %d: negative min radius", i)
		}
		if i > 0 && step.Precision < out[i-1].Precision {
			return nil, fmt.Errorf("precision table row %d: precision %d is coarser than %d for a smaller radius",
				i, step.Precision, out[i-1].Precision)
		}
	}
	return out, nil
}

// PrecisionFor returns the precision for radius. The table must already be
// normalized.
func (t PrecisionTable) PrecisionFor(radiusMeters float64) int {
	for _, step := range t {
		if radiusMeters > step.MinRadiusMeters {
			return step.Precision
		}
	}
	return t[len(t)-1].Precision
}

// Strategy selects how the planner enumerates cells.
type Strategy string

const (
	// StrategyGrid enumerates every cell intersecting the search box.
	StrategyGrid Strategy = "grid"
	// StrategyExpand grows outward from the center cell through neighbors.
	StrategyExpand Strategy = "expand"
)

// PlannerOptions configures a CoveragePlanner.
type PlannerOptions struct {
	Table     PrecisionTable
	MaxRanges int
	Strategy  Strategy
}

// Plan is the planner's answer for one search.
type Plan struct {
	Precision int
	Strategy  Strategy
	Ranges    []CoverageRange
}

var (
	errBudgetExceeded  = errors.New("coverage budget exceeded")
	errGridUnavailable = errors.New("grid enumeration unavailable")
)

// CoveragePlanner turns a circle into key ranges that never miss a point inside
// it. Cells are accepted when their center lies within radius plus one cell
// diagonal of the query center, which over-covers cells near the rim; the
// ranker removes the resulting false positives by true distance.
type CoveragePlanner struct {
	table     PrecisionTable
	maxRanges int
	strategy  Strategy
	logger    *slog.Logger
}

// NewCoveragePlanner validates opts and returns a planner. Zero values fall back
// to the default table, 64 ranges and the grid strategy.
func NewCoveragePlanner(opts PlannerOptions, logger *slog.Logger) (*CoveragePlanner, error) {
	table := opts.Table
	if len(table) == 0 {
		table = DefaultPrecisionTable()
	}
	table, err := table.Normalize()
	if err != nil {
		return nil, err
	}

	maxRanges := opts.MaxRanges
	if maxRanges <= 0 {
		maxRanges = 64
	}

	strategy := opts.Strategy
	switch strategy {
	case "":
		strategy = StrategyGrid
	case StrategyGrid, StrategyExpand:
	default:
		return nil, fmt.Errorf("unknown coverage strategy %q", strategy)
	}

	return &CoveragePlanner{
		table:     table,
		maxRanges: maxRanges,
		strategy:  strategy,
		logger:    logging.OrDiscard(logger),
	}, nil
}

// PrecisionFor exposes the planner's precision table.
func (p *CoveragePlanner) PrecisionFor(radiusMeters float64) int {
	return p.table.PrecisionFor(radiusMeters)
}

// Plan computes the coverage ranges for a circle. maxPrecision is the precision
// the target collection's keys were written with; the query precision never
// exceeds it, otherwise the prefix ranges would be longer than the stored keys.
// When the chosen precision needs more than MaxRanges ranges the planner
// retries one precision coarser; precision 1 is always accepted.
func (p *CoveragePlanner) Plan(center entities.Location, radiusMeters float64, maxPrecision int) (Plan, error) {
	if err := ValidateCoordinate(center.Latitude, center.Longitude); err != nil {
		return Plan{}, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return Plan{}, newValidationError(ErrInvalidRadius, "radius", radiusMeters, "must be greater than 0 meters")
	}
	if maxPrecision == 0 {
		maxPrecision = MaxPrecision
	}
	if err := ValidatePrecision(maxPrecision); err != nil {
		return Plan{}, err
	}

	precision := p.table.PrecisionFor(radiusMeters)
	if precision > maxPrecision {
		precision = maxPrecision
	}

	box := searchBox(center, radiusMeters)

	for prec := precision; prec >= MinPrecision; prec-- {
		budget := p.maxRanges
		if prec == MinPrecision {
			budget = math.MaxInt
		}

		strategy := p.strategy
		keys, err := p.cover(center, radiusMeters, box, prec, strategy, budget)
		if errors.Is(err, errGridUnavailable) {
			p.logger.Warn("grid coverage unavailable, expanding from center cell",
				"precision", prec, "err", err)
			strategy = StrategyExpand
			keys, err = p.cover(center, radiusMeters, box, prec, strategy, budget)
		}
		if errors.Is(err, errBudgetExceeded) {
			p.logger.Debug("coverage too wide, coarsening",
				"precision", prec, "max_ranges", p.maxRanges)
			continue
		}
		if err != nil {
			return Plan{}, err
		}

		ranges := make([]CoverageRange, len(keys))
		for i, k := range keys {
			ranges[i] = RangeForPrefix(k)
		}
		return Plan{Precision: prec, Strategy: strategy, Ranges: ranges}, nil
	}

	// Unreachable: precision 1 has no budget.
	return Plan{}, errBudgetExceeded
}

func (p *CoveragePlanner) cover(center entities.Location, radius float64, box searchArea, prec int, strategy Strategy, budget int) ([]string, error) {
	var (
		set map[string]struct{}
		err error
	)
	switch strategy {
	case StrategyExpand:
		set, err = coverByExpansion(center, radius, prec, budget)
	default:
		set, err = coverByGrid(center, radius, box, prec, budget)
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// searchArea is the axis-aligned box around the circle. lngIntervals holds one
// interval, or two when the box crosses the antimeridian.
type searchArea struct {
	latMin, latMax float64
	lngIntervals   [][2]float64
}

// searchBox converts the radius into degree deltas. The spherical longitude
// extent asin(sin(r/R)/cos(lat)) is used when it is wider than the planar
// r/(111000*cos(lat)) formula, because the circle bulges east-west poleward of
// its center. A box touching a pole spans every longitude.
func searchBox(center entities.Location, radius float64) searchArea {
	latRad := center.Latitude * math.Pi / 180
	latDelta := radius / metersPerDegree
	lngDelta := radius / (metersPerDegree * math.Cos(latRad))

	angular := radius / EarthRadiusMeters
	if s := math.Sin(angular) / math.Cos(latRad); s < 1 && !math.IsNaN(s) {
		if exact := math.Asin(s) * 180 / math.Pi; exact > lngDelta {
			lngDelta = exact
		}
	} else {
		lngDelta = math.Inf(1)
	}

	area := searchArea{
		latMin: center.Latitude - latDelta,
		latMax: center.Latitude + latDelta,
	}

	fullLng := math.IsNaN(lngDelta) || math.IsInf(lngDelta, 0) || lngDelta >= 180 ||
		area.latMin <= -90 || area.latMax >= 90
	area.latMin = math.Max(area.latMin, -90)
	area.latMax = math.Min(area.latMax, 90)

	switch lo, hi := center.Longitude-lngDelta, center.Longitude+lngDelta; {
	case fullLng:
		area.lngIntervals = [][2]float64{{-180, 180}}
	case lo < -180:
		area.lngIntervals = [][2]float64{{lo + 360, 180}, {-180, hi}}
	case hi > 180:
		area.lngIntervals = [][2]float64{{lo, 180}, {-180, hi - 360}}
	default:
		area.lngIntervals = [][2]float64{{lo, hi}}
	}
	return area
}

// coverByGrid walks the cell grid rows and columns that intersect the box.
func coverByGrid(center entities.Location, radius float64, box searchArea, prec, budget int) (map[string]struct{}, error) {
	if math.IsNaN(box.latMin) || math.IsNaN(box.latMax) || len(box.lngIntervals) == 0 {
		return nil, errGridUnavailable
	}
	for _, iv := range box.lngIntervals {
		if math.IsNaN(iv[0]) || math.IsNaN(iv[1]) {
			return nil, errGridUnavailable
		}
	}

	cellH, cellW := CellSize(prec)
	nRows := int(math.Round(180 / cellH))
	nCols := int(math.Round(360 / cellW))

	rowLo := clampIndex(int(math.Floor((box.latMin+90)/cellH)), nRows)
	rowHi := clampIndex(int(math.Floor((box.latMax+90)/cellH)), nRows)

	type span struct{ lo, hi int }
	spans := make([]span, 0, len(box.lngIntervals))
	estimate := 0
	for _, iv := range box.lngIntervals {
		s := span{
			lo: clampIndex(int(math.Floor((iv[0]+180)/cellW)), nCols),
			hi: clampIndex(int(math.Floor((iv[1]+180)/cellW)), nCols),
		}
		spans = append(spans, s)
		estimate += (s.hi - s.lo + 1) * (rowHi - rowLo + 1)
	}
	// Rim filtering drops at most the box corners, so a box several times
	// larger than the budget cannot fit it.
	if budget != math.MaxInt && estimate > 4*budget {
		return nil, errBudgetExceeded
	}

	set := make(map[string]struct{})
	for row := rowLo; row <= rowHi; row++ {
		for _, s := range spans {
			for col := s.lo; col <= s.hi; col++ {
				cell := entities.BoundingBox{
					LatMin: -90 + float64(row)*cellH,
					LatMax: -90 + float64(row+1)*cellH,
					LngMin: -180 + float64(col)*cellW,
					LngMax: -180 + float64(col+1)*cellW,
				}
				if !cellAccepted(center, radius, cell) {
					continue
				}
				c := cell.Center()
				key, err := Encode(c.Latitude, c.Longitude, prec)
				if err != nil {
					return nil, errGridUnavailable
				}
				set[key] = struct{}{}
				if len(set) > budget {
					return nil, errBudgetExceeded
				}
			}
		}
	}
	if len(set) == 0 {
		return nil, errGridUnavailable
	}
	return set, nil
}

// coverByExpansion grows breadth-first from the center cell, stepping only
// through accepted cells. The cells intersecting the circle form a connected
// patch, so every one of them is reached.
func coverByExpansion(center entities.Location, radius float64, prec, budget int) (map[string]struct{}, error) {
	start, err := EncodeLocation(center, prec)
	if err != nil {
		return nil, err
	}

	set := map[string]struct{}{start: {}}
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]

		for _, n := range Neighbors(key) {
			if seen[n] {
				continue
			}
			seen[n] = true

			cell, err := Decode(n)
			if err != nil || !cellAccepted(center, radius, cell) {
				continue
			}
			set[n] = struct{}{}
			if len(set) > budget {
				return nil, errBudgetExceeded
			}
			queue = append(queue, n)
		}
	}
	return set, nil
}

// cellAccepted applies the coverage criterion: any point of the cell is within
// one diagonal of the cell center, so a cell holding a point inside the circle
// has its center within radius + diagonal.
func cellAccepted(center entities.Location, radius float64, cell entities.BoundingBox) bool {
	diag := math.Max(
		Distance(entities.NewLocation(cell.LatMin, cell.LngMin), entities.NewLocation(cell.LatMax, cell.LngMax)),
		Distance(entities.NewLocation(cell.LatMax, cell.LngMin), entities.NewLocation(cell.LatMin, cell.LngMax)),
	)
	return Distance(center, cell.Center()) <= radius+diag
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
