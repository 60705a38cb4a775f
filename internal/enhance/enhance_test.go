package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wplace_overlay/internal/palette"
)

func onePixel(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, c)
	return img
}

// drawn returns a 3x3 mask of opaque sub-pixels.
func drawn(img *image.NRGBA) [3][3]bool {
	var m [3][3]bool
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			m[y][x] = img.NRGBAAt(x, y).A != 0
		}
	}
	return m
}

func TestClassify_Total(t *testing.T) {
	counts := map[Cell]int{}
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			counts[Classify(row, col)]++
		}
	}
	// per 3x3 block: 1 center, 4 arms, 4 corners
	assert.Equal(t, 9, counts[CellCenter])
	assert.Equal(t, 36, counts[CellArm])
	assert.Equal(t, 36, counts[CellCorner])
	assert.Equal(t, CellCenter, Classify(1, 1))
	assert.Equal(t, CellArm, Classify(0, 1))
	assert.Equal(t, CellCorner, Classify(2, 2))
}

func TestRender_ModeShapes(t *testing.T) {
	red := color.NRGBA{237, 28, 36, 255}
	X, o := true, false
	tests := []struct {
		mode Mode
		want [3][3]bool
	}{
		{ModeDot, [3][3]bool{{o, o, o}, {o, X, o}, {o, o, o}}},
		{ModeCross, [3][3]bool{{o, X, o}, {X, X, X}, {o, X, o}}},
		{ModeRedCross, [3][3]bool{{o, X, o}, {X, X, X}, {o, X, o}}},
		{ModeFill, [3][3]bool{{X, X, X}, {X, X, X}, {X, X, X}}},
		{ModeRedBorder, [3][3]bool{{X, X, X}, {X, X, X}, {X, X, X}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out := Render(onePixel(red), nil, image.Point{}, tt.mode)
			require.Equal(t, image.Rect(0, 0, 3, 3), out.Bounds())
			assert.Equal(t, tt.want, drawn(out))
			assert.Equal(t, red, out.NRGBAAt(1, 1), "center keeps the original colour")
		})
	}
}

func TestRender_AccentColours(t *testing.T) {
	c := color.NRGBA{100, 50, 200, 255}
	tests := []struct {
		mode Mode
		arm  color.NRGBA
	}{
		{ModeCross, c},
		{ModeRedCross, color.NRGBA{255, 0, 0, 255}},
		{ModeCyanCross, color.NRGBA{0, 255, 255, 255}},
		{ModeDarkCross, color.NRGBA{50, 25, 100, 255}},
		{ModeComplementCross, color.NRGBA{155, 205, 55, 255}},
		{ModeRedBorder, color.NRGBA{255, 0, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out := Render(onePixel(c), nil, image.Point{}, tt.mode)
			assert.Equal(t, tt.arm, out.NRGBAAt(1, 0))
			assert.Equal(t, c, out.NRGBAAt(1, 1))
		})
	}
	border := Render(onePixel(c), nil, image.Point{}, ModeRedBorder)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, border.NRGBAAt(0, 0))
}

func TestRender_MatchSuppression(t *testing.T) {
	c := color.NRGBA{0, 0, 0, 255}
	live := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	live.SetNRGBA(4, 5, c)

	for _, m := range Modes() {
		out := Render(onePixel(c), live, image.Pt(4, 5), m)
		if m == ModeFill {
			assert.Equal(t, [3][3]bool{{true, true, true}, {true, true, true}, {true, true, true}}, drawn(out), "fill ignores matches")
			continue
		}
		assert.Equal(t, [3][3]bool{}, drawn(out), "mode %s draws nothing on a match", m)
	}

	// unpainted live pixel is not a match even with the same rgb
	out := Render(onePixel(c), live, image.Pt(0, 0), ModeDot)
	assert.True(t, drawn(out)[1][1])
}

func TestRender_TransparentAndMarker(t *testing.T) {
	out := Render(onePixel(color.NRGBA{237, 28, 36, 0}), nil, image.Point{}, ModeFill)
	assert.Equal(t, [3][3]bool{}, drawn(out))

	m := palette.TransparencyMarker
	marker := color.NRGBA{m.R, m.G, m.B, 255}
	X, o := true, false
	tests := []struct {
		mode Mode
		want [3][3]bool
	}{
		{ModeDot, [3][3]bool{{o, o, o}, {o, X, o}, {o, o, o}}},
		{ModeCross, [3][3]bool{{o, o, o}, {o, X, o}, {o, o, o}}},
		{ModeFill, [3][3]bool{{X, o, X}, {o, X, o}, {X, o, X}}},
		{ModeRedBorder, [3][3]bool{{X, o, X}, {o, X, o}, {X, o, X}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out := Render(onePixel(marker), nil, image.Point{}, tt.mode)
			assert.Equal(t, tt.want, drawn(out))
			assert.Equal(t, marker, out.NRGBAAt(1, 1))
		})
	}
}

// TestRender_CellsStayInsideModeShape checks every mode against every
// catalog colour and the marker: dot draws only centers and the cross
// family never draws corners.
func TestRender_CellsStayInsideModeShape(t *testing.T) {
	colours := []palette.RGB{palette.TransparencyMarker}
	for _, c := range palette.Catalog() {
		colours = append(colours, c.RGB)
	}
	src := image.NewNRGBA(image.Rect(0, 0, len(colours), 1))
	for i, c := range colours {
		src.SetNRGBA(i, 0, color.NRGBA{c.R, c.G, c.B, 255})
	}

	for _, mode := range Modes() {
		out := Render(src, nil, image.Point{}, mode)
		b := out.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if out.NRGBAAt(x, y).A == 0 {
					continue
				}
				cell := Classify(y, x)
				switch mode {
				case ModeDot:
					assert.Equal(t, CellCenter, cell, "%s drew (%d,%d)", mode, x, y)
				case ModeFill, ModeRedBorder:
				default:
					assert.NotEqual(t, CellCorner, cell, "%s drew corner (%d,%d)", mode, x, y)
				}
			}
		}
	}
}

func TestRender_DotIsSubsetOfFill(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 40), uint8(y * 60), 7, uint8(255 * ((x + y) % 2))})
		}
	}
	dot := Render(src, nil, image.Point{}, ModeDot)
	fill := Render(src, nil, image.Point{}, ModeFill)
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			if dot.NRGBAAt(x, y).A != 0 {
				assert.Equal(t, CellCenter, Classify(y, x))
				assert.NotZero(t, fill.NRGBAAt(x, y).A)
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Red-Cross ")
	require.NoError(t, err)
	assert.Equal(t, ModeRedCross, m)
	_, err = ParseMode("sparkle")
	assert.Error(t, err)
}
