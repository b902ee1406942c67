package pasture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/raster"
)

// Assets are the provider ids of the four datasets.
type Assets struct {
	Biomass   string
	Age       string
	Vigor     string
	LandCover string
}

// Aggregator computes pasture statistics for a confirmed property. It never
// caches and never retries; a slow provider is the caller's call to retry.
type Aggregator struct {
	engine raster.Engine
	assets Assets
	scale  float64
	logr   *zap.Logger
}

func NewAggregator(engine raster.Engine, assets Assets, scaleMeters float64, logr *zap.Logger) *Aggregator {
	if scaleMeters <= 0 {
		scaleMeters = 30
	}
	return &Aggregator{engine: engine, assets: assets, scale: scaleMeters, logr: logr}
}

// Compute runs the four dataset queries concurrently. Any failure fails the
// whole call; partial statistics are never returned.
func (a *Aggregator) Compute(ctx context.Context, property models.PropertyFeature) (*PastureStatsResult, error) {
	if err := property.Geometry.Validate(); err != nil {
		return nil, apperror.New(apperror.InvalidInput, "property has an invalid boundary", err)
	}

	start := time.Now()
	var biomass, age, vigor, landCover raster.Result

	g, gctx := errgroup.WithContext(ctx)
	run := func(dataset, asset string, reducer raster.Reducer, classifier *raster.Classifier, out *raster.Result) {
		g.Go(func() error {
			res, err := a.engine.ZonalStats(gctx, raster.Query{
				Dataset:    dataset,
				Asset:      asset,
				Geometry:   property.Geometry,
				Reducer:    reducer,
				Scale:      a.scale,
				Classifier: classifier,
			})
			if err != nil {
				return &datasetError{dataset: dataset, err: err}
			}
			*out = res
			return nil
		})
	}
	run(DatasetBiomass, a.assets.Biomass, raster.ReducerWeightedSum, nil, &biomass)
	run(DatasetAge, a.assets.Age, raster.ReducerGroupedArea, ageClassifier(), &age)
	run(DatasetVigor, a.assets.Vigor, raster.ReducerGroupedArea, nil, &vigor)
	run(DatasetLandCover, a.assets.LandCover, raster.ReducerGroupedArea, nil, &landCover)

	if err := g.Wait(); err != nil {
		dataset := "unknown"
		cause := err
		if de, ok := err.(*datasetError); ok {
			dataset, cause = de.dataset, de.err
		}
		a.logr.Warn("pasture aggregation failed",
			zap.String("car", property.Code),
			zap.String("dataset", dataset),
			zap.String("kind", string(apperror.KindOf(cause))),
			zap.Error(cause))
		return nil, apperror.New(apperror.PartialAggregationFailure,
			fmt.Sprintf("%s query failed", dataset), cause)
	}

	result := &PastureStatsResult{
		Biomass:   Quantity{Value: biomass.Total, Unit: UnitTonnes},
		Age:       make([]AgeArea, 0, len(AgeBuckets)),
		Vigor:     make([]VigorArea, 0, len(vigorClasses)),
		LandCover: []LandCoverArea{},
	}
	for _, b := range AgeBuckets {
		result.Age = append(result.Age, AgeArea{Bucket: b.Label, Area: hectares(age.Groups[b.Class])})
	}
	for _, v := range vigorClasses {
		result.Vigor = append(result.Vigor, VigorArea{Level: v.Level, Area: hectares(vigor.Groups[v.Class])})
	}
	known := make(map[int]bool, len(LandCoverClasses))
	for _, c := range LandCoverClasses {
		known[c.ID] = true
		if area, ok := landCover.Groups[c.ID]; ok {
			result.LandCover = append(result.LandCover, LandCoverArea{ClassID: c.ID, ClassName: c.Name, Area: hectares(area)})
		}
	}
	for id := range landCover.Groups {
		if !known[id] {
			a.logr.Debug("land cover class outside taxonomy", zap.String("car", property.Code), zap.Int("class", id))
		}
	}

	a.logr.Info("pasture statistics computed",
		zap.String("car", property.Code),
		zap.Float64("biomass_t", result.Biomass.Value),
		zap.Int("land_cover_classes", len(result.LandCover)),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

func hectares(v float64) Quantity {
	return Quantity{Value: v, Unit: UnitHectares}
}

type datasetError struct {
	dataset string
	err     error
}

func (e *datasetError) Error() string { return e.dataset + ": " + e.err.Error() }
func (e *datasetError) Unwrap() error { return e.err }
