package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/lapig-ufg/pasto-legal/internal/models"
)

const (
	DefaultTileSize = 256
	gutter          = 2
	strokeWidth     = 3
	labelSize       = 16.0
)

var (
	background = color.RGBA{0xF4, 0xF1, 0xE8, 0xFF}
	fill       = color.RGBA{0x4C, 0x9A, 0x2A, 0x80}
	outline    = color.RGBA{0xFF, 0x00, 0x00, 0xFF}
	labelBox   = color.RGBA{0x1F, 0x3A, 0x1A, 0xC0}
)

// Renderer draws candidate boundaries as a vertical mosaic of square tiles,
// each labelled "Área N" in the order the candidates were listed.
type Renderer struct {
	tile int
	font *truetype.Font
}

func NewRenderer(tileSize int) (*Renderer, error) {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if tileSize < 64 {
		return nil, fmt.Errorf("tile size %d is too small", tileSize)
	}
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Renderer{tile: tileSize, font: f}, nil
}

// Render returns the PNG encoded mosaic.
func (r *Renderer) Render(features []models.PropertyFeature) ([]byte, error) {
	if len(features) == 0 {
		return nil, errors.New("no features to render")
	}

	width := r.tile + 2*gutter
	height := len(features)*(r.tile+gutter) + gutter
	mosaic := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(mosaic, mosaic.Bounds(), image.White, image.Point{}, draw.Src)

	face := truetype.NewFace(r.font, &truetype.Options{Size: labelSize, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	for i, f := range features {
		if err := f.Geometry.Validate(); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i+1, err)
		}
		top := gutter + i*(r.tile+gutter)
		tile := image.NewRGBA(image.Rect(0, 0, r.tile, r.tile))
		draw.Draw(tile, tile.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
		r.drawBoundary(tile, f.Geometry)

		dst := image.Rect(gutter, top, gutter+r.tile, top+r.tile)
		draw.Draw(mosaic, dst, tile, image.Point{}, draw.Over)
		drawLabel(mosaic, face, fmt.Sprintf("Área %d", i+1), gutter+3, top+3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, mosaic); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// projector maps lon/lat into tile pixels, keeping the aspect ratio and a
// margin of a tenth of the tile on each side.
type projector struct {
	minLon, maxLat float64
	scale          float64
	offX, offY     float64
}

func newProjector(b models.BoundingBox, size int) projector {
	margin := float64(size) / 10
	avail := float64(size) - 2*margin
	// Longitude degrees shrink with latitude.
	kx := math.Cos((b.MinLat + b.MaxLat) / 2 * math.Pi / 180)
	w := b.Width() * kx
	h := b.Height()
	extent := math.Max(w, h)
	if extent == 0 {
		extent = 1e-9
	}
	scale := avail / extent
	return projector{
		minLon: b.MinLon,
		maxLat: b.MaxLat,
		scale:  scale,
		offX:   margin + (avail-w*scale)/2,
		offY:   margin + (avail-h*scale)/2,
	}
}

func (p projector) point(pos models.Position, kx float64) (float32, float32) {
	x := p.offX + (pos.Lon()-p.minLon)*kx*p.scale
	y := p.offY + (p.maxLat-pos.Lat())*p.scale
	return float32(x), float32(y)
}

func (r *Renderer) drawBoundary(tile *image.RGBA, g models.Geometry) {
	b := g.Bounds()
	proj := newProjector(b, r.tile)
	kx := math.Cos((b.MinLat + b.MaxLat) / 2 * math.Pi / 180)

	area := vector.NewRasterizer(r.tile, r.tile)
	for _, poly := range g.Polygons {
		outer := poly[0].Orientation()
		for ri, ring := range poly {
			pts := ring
			// Holes must wind against the outer ring so the accumulation cancels.
			if ri > 0 && ring.Orientation() == outer {
				pts = ring.Clone()
				pts.Reverse()
			}
			x, y := proj.point(pts[0], kx)
			area.MoveTo(x, y)
			for _, pos := range pts[1:] {
				x, y = proj.point(pos, kx)
				area.LineTo(x, y)
			}
			area.ClosePath()
		}
	}
	area.Draw(tile, tile.Bounds(), image.NewUniform(fill), image.Point{})

	stroke := vector.NewRasterizer(r.tile, r.tile)
	half := float32(strokeWidth) / 2
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				x1, y1 := proj.point(ring[i], kx)
				x2, y2 := proj.point(ring[i+1], kx)
				segment(stroke, x1, y1, x2, y2, half)
			}
		}
	}
	stroke.Draw(tile, tile.Bounds(), image.NewUniform(outline), image.Point{})
}

// segment adds a quad of half-width w around the line. Every quad is wound
// the same way so overlapping joints add up instead of cancelling.
func segment(z *vector.Rasterizer, x1, y1, x2, y2, w float32) {
	dx, dy := x2-x1, y2-y1
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*w, dx/l*w
	z.MoveTo(x1+nx, y1+ny)
	z.LineTo(x2+nx, y2+ny)
	z.LineTo(x2-nx, y2-ny)
	z.LineTo(x1-nx, y1-ny)
	z.ClosePath()
}

func drawLabel(dst *image.RGBA, face font.Face, text string, x, y int) {
	d := &font.Drawer{Dst: dst, Src: image.White, Face: face}
	m := face.Metrics()
	w := d.MeasureString(text).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	box := image.Rect(x, y, x+w+8, y+h+4)
	draw.Draw(dst, box, image.NewUniform(labelBox), image.Point{}, draw.Over)
	d.Dot = fixed.Point26_6{X: fixed.I(x + 4), Y: fixed.I(y+2) + m.Ascent}
	d.DrawString(text)
}
