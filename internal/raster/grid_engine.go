package raster

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// PixelAreaHectares is the area of a lat/lon cell whose southern edge is at
// lat, on a spherical earth. Cells shrink towards the poles, which is why
// grouped reductions sum pixel area instead of counting pixels.
func PixelAreaHectares(lat, dLat, dLon float64) float64 {
	cell := orb.Bound{Min: orb.Point{0, lat}, Max: orb.Point{dLon, lat + dLat}}
	return math.Abs(geo.Area(cell.ToPolygon())) / 10000
}

// Grid is a single band raster in EPSG:4326. Row 0 is the northern edge.
type Grid struct {
	OriginLon float64   `json:"origin_lon"`
	OriginLat float64   `json:"origin_lat"`
	CellDeg   float64   `json:"cell_deg"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	Values    []float64 `json:"values"`
	NoData    *float64  `json:"nodata,omitempty"`
}

func (g *Grid) validate() error {
	if g.CellDeg <= 0 || g.Cols <= 0 || g.Rows <= 0 {
		return fmt.Errorf("grid has invalid shape %dx%d cell %v", g.Cols, g.Rows, g.CellDeg)
	}
	if len(g.Values) != g.Cols*g.Rows {
		return fmt.Errorf("grid has %d values, want %d", len(g.Values), g.Cols*g.Rows)
	}
	return nil
}

func (g *Grid) at(row, col int) (float64, bool) {
	v := g.Values[row*g.Cols+col]
	if math.IsNaN(v) || (g.NoData != nil && v == *g.NoData) {
		return 0, false
	}
	return v, true
}

// GridEngine answers zonal queries from in-memory grids keyed by asset id.
// Pixels are sampled at the grid's native resolution and a pixel belongs to
// the polygon when its centre does. Query.Scale is validated but not
// applied: grids are exported at the scale they should be reduced at, so
// there is no resampling.
type GridEngine struct {
	mu    sync.RWMutex
	grids map[string]*Grid
}

func NewGridEngine() *GridEngine {
	return &GridEngine{grids: make(map[string]*Grid)}
}

// Register adds or replaces the grid served for asset.
func (e *GridEngine) Register(asset string, g *Grid) error {
	if err := g.validate(); err != nil {
		return fmt.Errorf("register %s: %w", asset, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grids[asset] = g
	return nil
}

// LoadFile registers a grid stored as JSON, as exported for offline
// development from the provider.
func (e *GridEngine) LoadFile(asset, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read grid %s: %w", path, err)
	}
	g := new(Grid)
	if err := json.Unmarshal(data, g); err != nil {
		return fmt.Errorf("decode grid %s: %w", path, err)
	}
	return e.Register(asset, g)
}

func (e *GridEngine) ZonalStats(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, fmt.Errorf("zonal stats %s: %w", q.Dataset, err)
	}
	e.mu.RLock()
	g, ok := e.grids[q.Asset]
	e.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("zonal stats %s: unknown asset %s", q.Dataset, q.Asset)
	}

	res := Result{}
	if q.Reducer == ReducerGroupedArea {
		res.Groups = make(map[int]float64)
	}

	polys := q.Geometry.Polygons
	minRow, maxRow, minCol, maxCol := g.window(polys.Bound())
	for row := minRow; row <= maxRow; row++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		south := g.OriginLat - float64(row+1)*g.CellDeg
		centreLat := south + g.CellDeg/2
		area := PixelAreaHectares(south, g.CellDeg, g.CellDeg)
		for col := minCol; col <= maxCol; col++ {
			centreLon := g.OriginLon + (float64(col)+0.5)*g.CellDeg
			if !planar.MultiPolygonContains(polys, orb.Point{centreLon, centreLat}) {
				continue
			}
			v, ok := g.at(row, col)
			if !ok {
				continue
			}
			switch q.Reducer {
			case ReducerWeightedSum:
				res.Total += v * area
			case ReducerGroupedArea:
				class, ok := q.Classifier.Classify(v)
				if !ok {
					continue
				}
				res.Groups[class] += area
			}
		}
	}
	return res, nil
}

// window clamps the bounding box to grid rows and columns.
func (g *Grid) window(b orb.Bound) (minRow, maxRow, minCol, maxCol int) {
	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}
	minCol = clamp(int(math.Floor((b.Left()-g.OriginLon)/g.CellDeg)), g.Cols-1)
	maxCol = clamp(int(math.Floor((b.Right()-g.OriginLon)/g.CellDeg)), g.Cols-1)
	minRow = clamp(int(math.Floor((g.OriginLat-b.Top())/g.CellDeg)), g.Rows-1)
	maxRow = clamp(int(math.Floor((g.OriginLat-b.Bottom())/g.CellDeg)), g.Rows-1)
	return minRow, maxRow, minCol, maxCol
}
