// Package enhance upscales a filtered overlay slice by 3 and draws each
// source pixel as a 3x3 block whose shape depends on the render mode.
package enhance

import (
	"fmt"
	"image"
	"strings"

	"wplace_overlay/internal/palette"
)

// Scale is the upscale factor applied to overlay slices and base tiles.
const Scale = 3

// Mode selects how a source pixel is drawn inside its 3x3 block.
type Mode string

const (
	ModeDot             Mode = "dot"
	ModeCross           Mode = "cross"
	ModeFill            Mode = "fill"
	ModeRedCross        Mode = "red-cross"
	ModeCyanCross       Mode = "cyan-cross"
	ModeDarkCross       Mode = "dark-cross"
	ModeComplementCross Mode = "complement-cross"
	ModeRedBorder       Mode = "red-border"
)

var modes = []Mode{
	ModeDot, ModeCross, ModeFill, ModeRedCross, ModeCyanCross,
	ModeDarkCross, ModeComplementCross, ModeRedBorder,
}

// Modes lists every supported mode.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown enhancement mode %q", s)
}

// Cell is the role of a sub-pixel inside its 3x3 block.
type Cell int

const (
	CellCorner Cell = iota
	CellArm
	CellCenter
)

// Classify maps an upscaled coordinate to its role in the block.
func Classify(row, col int) Cell {
	rc := row%Scale == 1
	cc := col%Scale == 1
	switch {
	case rc && cc:
		return CellCenter
	case rc || cc:
		return CellArm
	default:
		return CellCorner
	}
}

var accentRed = palette.RGB{R: 255}

// accent returns the arm colour of an accent mode.
func accent(mode Mode, c palette.RGB) palette.RGB {
	switch mode {
	case ModeRedCross, ModeRedBorder:
		return accentRed
	case ModeCyanCross:
		return palette.RGB{G: 255, B: 255}
	case ModeDarkCross:
		return palette.RGB{R: c.R / 2, G: c.G / 2, B: c.B / 2}
	case ModeComplementCross:
		return palette.RGB{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B}
	}
	return c
}

// paint returns the colour of one sub-pixel and whether it is drawn.
func paint(mode Mode, cell Cell, c palette.RGB) (palette.RGB, bool) {
	if cell == CellCenter {
		return c, true
	}
	switch mode {
	case ModeFill:
		return c, true
	case ModeDot:
		return c, false
	case ModeCross:
		return c, cell == CellArm
	case ModeRedBorder:
		return accentRed, true
	default:
		return accent(mode, c), cell == CellArm
	}
}

// Render draws filtered at 3x scale. live is the base tile and origin the
// slice's offset inside it; a nil live disables match suppression.
//
// A pixel whose colour already equals the live pixel underneath is skipped
// entirely, except in fill mode. Transparency-marker pixels render as a
// checkerboard (center and corners) in the modes that draw corners and as
// the center alone otherwise.
func Render(filtered, live *image.NRGBA, origin image.Point, mode Mode) *image.NRGBA {
	b := filtered.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*Scale, b.Dy()*Scale))

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := filtered.PixOffset(b.Min.X+x, b.Min.Y+y)
			p := filtered.Pix[i : i+4 : i+4]
			if p[3] == 0 {
				continue
			}
			c := palette.RGB{R: p[0], G: p[1], B: p[2]}

			if c == palette.TransparencyMarker {
				drawBlock(dst, x, y, p[3], func(cell Cell) (palette.RGB, bool) {
					return c, markerCell(mode, cell)
				})
				continue
			}
			if mode != ModeFill && matchesLive(live, origin.X+x, origin.Y+y, c) {
				continue
			}
			drawBlock(dst, x, y, p[3], func(cell Cell) (palette.RGB, bool) {
				return paint(mode, cell, c)
			})
		}
	}
	return dst
}

// markerCell reports whether a marker sub-pixel is drawn. The checkerboard
// never reaches a cell the mode itself leaves empty.
func markerCell(mode Mode, cell Cell) bool {
	switch cell {
	case CellCenter:
		return true
	case CellCorner:
		return mode == ModeFill || mode == ModeRedBorder
	}
	return false
}

func drawBlock(dst *image.NRGBA, x, y int, alpha uint8, pick func(Cell) (palette.RGB, bool)) {
	for dy := 0; dy < Scale; dy++ {
		for dx := 0; dx < Scale; dx++ {
			row, col := y*Scale+dy, x*Scale+dx
			c, ok := pick(Classify(row, col))
			if !ok {
				continue
			}
			j := dst.PixOffset(col, row)
			dst.Pix[j+0] = c.R
			dst.Pix[j+1] = c.G
			dst.Pix[j+2] = c.B
			dst.Pix[j+3] = alpha
		}
	}
}

// matchesLive reports whether the opaque live pixel at (x, y) has colour c.
func matchesLive(live *image.NRGBA, x, y int, c palette.RGB) bool {
	if live == nil || !(image.Point{X: x, Y: y}).In(live.Bounds()) {
		return false
	}
	i := live.PixOffset(x, y)
	q := live.Pix[i : i+4 : i+4]
	return q[3] != 0 && q[0] == c.R && q[1] == c.G && q[2] == c.B
}
