package compositor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
	"wplace_overlay/internal/stats"
)

var (
	white = color.NRGBA{255, 255, 255, 255}
	red   = color.NRGBA{237, 28, 36, 255}
	black = color.NRGBA{0, 0, 0, 255}
)

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return overlay.ToNRGBA(img)
}

func expectColor(t *testing.T, img *image.NRGBA, x, y int, want color.NRGBA) {
	t.Helper()
	assert.Equal(t, want, img.NRGBAAt(x, y), "pixel (%d,%d)", x, y)
}

// whiteBase is a 4x4 opaque white base tile.
func whiteBase(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	fillRect(img, img.Bounds(), white)
	return encodePNG(t, img)
}

func newLayer(t *testing.T, reg *overlay.Registry, key string, art *image.NRGBA, px, py int) *overlay.Layer {
	t.Helper()
	l, _, err := reg.Add(key, art, overlay.Anchor{Pixel: overlay.LocalPixel{X: px, Y: py}})
	require.NoError(t, err)
	return l
}

func dotArt(c color.NRGBA) *image.NRGBA {
	art := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	art.SetNRGBA(0, 0, c)
	return art
}

func newTestCompositor() (*Compositor, *stats.Store) {
	store := stats.NewStore()
	return New(store, zap.NewNop()), store
}

func TestComposite_BackdropAndDot(t *testing.T) {
	c, _ := newTestCompositor()
	reg := overlay.NewRegistry()
	newLayer(t, reg, "a", dotArt(red), 1, 1)

	out, err := c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.Active(),
		Params{Mode: enhance.ModeDot, Device: filter.DeviceCPU})
	require.NoError(t, err)

	img := decodePNG(t, out)
	require.Equal(t, image.Rect(0, 0, 12, 12), img.Bounds())
	expectColor(t, img, 4, 4, red)
	expectColor(t, img, 3, 3, white)
	expectColor(t, img, 5, 4, white)
	expectColor(t, img, 11, 11, white)
}

func TestComposite_InlineStats(t *testing.T) {
	c, store := newTestCompositor()
	reg := overlay.NewRegistry()
	art := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	art.SetNRGBA(0, 0, white) // already painted on the base
	art.SetNRGBA(1, 0, red)
	newLayer(t, reg, "a", art, 0, 0)

	params := Params{Mode: enhance.ModeCross, Device: filter.DeviceCPU}
	for i := 0; i < 3; i++ {
		_, err := c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.Active(), params)
		require.NoError(t, err)
	}

	agg := store.Aggregate("a")
	assert.Equal(t, stats.Counts{Matched: 1, Total: 1}, agg["255,255,255"])
	assert.Equal(t, stats.Counts{Matched: 0, Total: 1}, agg["237,28,36"])
	assert.Len(t, store.PerTile("a"), 1)
}

func TestComposite_EmptyFilterShowsNothingButCounts(t *testing.T) {
	c, store := newTestCompositor()
	reg := overlay.NewRegistry()
	newLayer(t, reg, "a", dotArt(red), 1, 1)

	out, err := c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.Active(),
		Params{Filter: palette.NewSet(), Mode: enhance.ModeFill, Device: filter.DeviceCPU})
	require.NoError(t, err)

	img := decodePNG(t, out)
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			expectColor(t, img, x, y, white)
		}
	}
	assert.Equal(t, stats.Counts{Total: 1}, store.Aggregate("a")["237,28,36"])
}

func TestComposite_ZOrderAndDisabledLayers(t *testing.T) {
	c, _ := newTestCompositor()
	reg := overlay.NewRegistry()
	newLayer(t, reg, "bottom", dotArt(red), 2, 2)
	newLayer(t, reg, "top", dotArt(black), 2, 2)

	params := Params{Mode: enhance.ModeFill, Device: filter.DeviceCPU}
	out, err := c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.Active(), params)
	require.NoError(t, err)
	expectColor(t, decodePNG(t, out), 6, 6, black)

	_, err = reg.SetDrawEnabled("top", false)
	require.NoError(t, err)
	out, err = c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.All(), params)
	require.NoError(t, err)
	expectColor(t, decodePNG(t, out), 6, 6, red)
}

func TestComposite_OtherTilesIgnored(t *testing.T) {
	c, store := newTestCompositor()
	reg := overlay.NewRegistry()
	newLayer(t, reg, "a", dotArt(red), 1, 1)

	out, err := c.Composite(context.Background(), overlay.TileAddress{X: 9, Y: 9}, whiteBase(t), reg.Active(),
		Params{Mode: enhance.ModeFill, Device: filter.DeviceCPU})
	require.NoError(t, err)
	expectColor(t, decodePNG(t, out), 4, 4, white)
	assert.Empty(t, store.PerTile("a"))
}

func TestComposite_PlaceholderBase(t *testing.T) {
	c, _ := newTestCompositor()
	c.tileSize = 10
	placeholder := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 1, 1)))

	reg := overlay.NewRegistry()
	newLayer(t, reg, "a", dotArt(red), 5, 5)

	out, err := c.Composite(context.Background(), overlay.TileAddress{}, placeholder, reg.Active(),
		Params{Mode: enhance.ModeDot, Device: filter.DeviceCPU})
	require.NoError(t, err)

	img := decodePNG(t, out)
	require.Equal(t, image.Rect(0, 0, 30, 30), img.Bounds())
	expectColor(t, img, 0, 0, color.NRGBA{})
	expectColor(t, img, 16, 16, red)
}

func TestComposite_UndecodableBase(t *testing.T) {
	c, _ := newTestCompositor()
	_, err := c.Composite(context.Background(), overlay.TileAddress{}, []byte("<html>rate limited</html>"), nil, Params{})
	assert.ErrorIs(t, err, ErrDecodeBase)
}

type brokenBackend struct{}

func (brokenBackend) Name() string { return "broken" }
func (brokenBackend) Apply(*image.NRGBA, *palette.Set) (*image.NRGBA, error) {
	return nil, assert.AnError
}

func TestComposite_FilterErrorSkipsSlice(t *testing.T) {
	c, _ := newTestCompositor()
	c.WithBackend(filter.DeviceCPU, brokenBackend{})
	reg := overlay.NewRegistry()
	newLayer(t, reg, "a", dotArt(red), 1, 1)

	out, err := c.Composite(context.Background(), overlay.TileAddress{}, whiteBase(t), reg.Active(),
		Params{Mode: enhance.ModeFill, Device: filter.DeviceCPU})
	require.NoError(t, err)
	expectColor(t, decodePNG(t, out), 4, 4, white)
}
