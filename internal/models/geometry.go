package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Position is a GeoJSON position: longitude first, then latitude.
type Position = orb.Point

// Ring is a closed linear ring.
type Ring = orb.Ring

// Polygon holds the outer ring first, followed by any holes.
type Polygon = orb.Polygon

// Geometry is the boundary of a property. Single polygons and multipolygons
// are both represented as a multipolygon.
type Geometry struct {
	Polygons orb.MultiPolygon
}

// BoundingBox in degrees.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

func (b BoundingBox) Width() float64  { return b.MaxLon - b.MinLon }
func (b BoundingBox) Height() float64 { return b.MaxLat - b.MinLat }

// MarshalJSON encodes the geometry as a GeoJSON Polygon, or a MultiPolygon
// when it has more than one part.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if len(g.Polygons) == 1 {
		return geojson.NewGeometry(g.Polygons[0]).MarshalJSON()
	}
	polys := g.Polygons
	if polys == nil {
		polys = orb.MultiPolygon{}
	}
	return geojson.NewGeometry(polys).MarshalJSON()
}

// UnmarshalJSON accepts GeoJSON Polygon and MultiPolygon geometries.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	switch geom := gj.Geometry().(type) {
	case orb.Polygon:
		g.Polygons = orb.MultiPolygon{geom}
	case orb.MultiPolygon:
		g.Polygons = geom
	default:
		return fmt.Errorf("unsupported geometry type %q", gj.Type)
	}
	return nil
}

// Validate checks that every ring has at least three distinct vertices, is
// closed, and carries finite, in-range coordinates.
func (g Geometry) Validate() error {
	if len(g.Polygons) == 0 {
		return errors.New("geometry has no polygons")
	}
	for pi, poly := range g.Polygons {
		if len(poly) == 0 {
			return fmt.Errorf("polygon %d has no rings", pi)
		}
		for ri, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("polygon %d ring %d has %d positions, need at least 4", pi, ri, len(ring))
			}
			if ring[0] != ring[len(ring)-1] {
				return fmt.Errorf("polygon %d ring %d is not closed", pi, ri)
			}
			for _, p := range ring {
				if !validLonLat(p.Lon(), p.Lat()) {
					return fmt.Errorf("polygon %d ring %d has invalid position %v", pi, ri, p)
				}
			}
		}
	}
	return nil
}

// Bounds returns the bounding box of all outer rings.
func (g Geometry) Bounds() BoundingBox {
	b := g.Polygons.Bound()
	return BoundingBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// Contains reports whether the point lies inside the geometry. Points inside
// a hole are outside.
func (g Geometry) Contains(lon, lat float64) bool {
	return planar.MultiPolygonContains(g.Polygons, orb.Point{lon, lat})
}

func validLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
