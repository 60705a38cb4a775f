package filter

import (
	"image"

	"wplace_overlay/internal/palette"
)

// CPU is the reference backend.
type CPU struct{}

func NewCPU() *CPU { return &CPU{} }

func (*CPU) Name() string { return "cpu" }

func (*CPU) Apply(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error) {
	dst := &image.NRGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	if allowed == nil {
		return dst, nil
	}

	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, i = x+1, i+4 {
			p := dst.Pix[i : i+4 : i+4]
			if p[3] == 0 {
				continue
			}
			if !allowed.Contains(palette.RGB{R: p[0], G: p[1], B: p[2]}) {
				p[3] = 0
			}
		}
	}
	return dst, nil
}
