package raster

import (
	"context"
	"fmt"

	"github.com/lapig-ufg/pasto-legal/internal/models"
)

// Reducer names the aggregation the provider runs over the polygon footprint.
type Reducer string

const (
	// ReducerWeightedSum sums value * pixel area (ha), e.g. t/ha biomass into tonnes.
	ReducerWeightedSum Reducer = "weighted_sum"
	// ReducerGroupedArea sums pixel area (ha) grouped by the classified pixel value.
	ReducerGroupedArea Reducer = "grouped_area"
)

// Query asks the provider for zonal statistics of one dataset.
type Query struct {
	Dataset    string
	Asset      string
	Geometry   models.Geometry
	Reducer    Reducer
	Scale      float64
	Classifier *Classifier
}

func (q Query) Validate() error {
	switch q.Reducer {
	case ReducerWeightedSum, ReducerGroupedArea:
	default:
		return fmt.Errorf("unknown reducer %q", q.Reducer)
	}
	if q.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %v", q.Scale)
	}
	if q.Asset == "" {
		return fmt.Errorf("dataset %s has no asset", q.Dataset)
	}
	return q.Geometry.Validate()
}

// Result of a zonal query. Total is set for weighted sums, Groups (class id to
// hectares) for grouped reductions. A class missing from Groups has zero area.
type Result struct {
	Total  float64
	Groups map[int]float64
}

// Engine is a remote or local zonal statistics provider.
type Engine interface {
	ZonalStats(ctx context.Context, q Query) (Result, error)
}
