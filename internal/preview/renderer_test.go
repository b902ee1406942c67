package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapig-ufg/pasto-legal/internal/models"
)

func square(minLon, minLat, size float64) models.Ring {
	return models.Ring{
		{minLon, minLat}, {minLon + size, minLat}, {minLon + size, minLat + size}, {minLon, minLat + size}, {minLon, minLat},
	}
}

func feature(rings ...models.Ring) models.PropertyFeature {
	return models.PropertyFeature{
		Code:     "GO-1234567-2A4F87C0C8E94E9E9B9E1D2F3A4B5C6D",
		Geometry: models.Geometry{Polygons: []models.Polygon{rings}},
	}
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestRenderStacksTilesVertically(t *testing.T) {
	r, err := NewRenderer(128)
	require.NoError(t, err)

	fs := []models.PropertyFeature{
		feature(square(-49.44, -15.84, 0.01)),
		feature(square(-49.43, -15.84, 0.02)),
		feature(square(-49.42, -15.84, 0.005)),
	}
	data, err := r.Render(fs)
	require.NoError(t, err)

	img := decode(t, data)
	assert.Equal(t, 128+2*gutter, img.Bounds().Dx())
	assert.Equal(t, 3*(128+gutter)+gutter, img.Bounds().Dy())

	for i := range fs {
		top := gutter + i*(128+gutter)
		centre := rgba(img.At(gutter+64, top+64))
		assert.NotEqual(t, background, centre, "tile %d centre is filled", i+1)

		red := false
		for x := gutter; x < gutter+128 && !red; x++ {
			c := rgba(img.At(x, top+64))
			red = c.R > 0xE0 && c.G < 0x40 && c.B < 0x40
		}
		assert.True(t, red, "tile %d has an outline", i+1)
	}

	// Gutter between the first two tiles stays white.
	assert.Equal(t, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, rgba(img.At(64, gutter+128)))
}

func TestRenderLeavesHolesEmpty(t *testing.T) {
	r, err := NewRenderer(128)
	require.NoError(t, err)

	outer := square(-49.44, -15.84, 0.01)
	hole := square(-49.4375, -15.8375, 0.005)
	data, err := r.Render([]models.PropertyFeature{feature(outer, hole)})
	require.NoError(t, err)

	img := decode(t, data)
	assert.Equal(t, background, rgba(img.At(gutter+64, gutter+64)))
	assert.NotEqual(t, background, rgba(img.At(gutter+20, gutter+64)))
}

func TestRenderErrors(t *testing.T) {
	r, err := NewRenderer(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTileSize, r.tile)

	_, err = r.Render(nil)
	assert.Error(t, err)

	_, err = r.Render([]models.PropertyFeature{{Code: "x"}})
	assert.Error(t, err)

	_, err = NewRenderer(10)
	assert.Error(t, err)
}
