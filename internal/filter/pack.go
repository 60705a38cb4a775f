package filter

import (
	"encoding/binary"
	"image"

	"wplace_overlay/internal/palette"
)

const (
	paramsSize = 16
	// bitmapSize covers every 24-bit RGB value, one bit each.
	bitmapSize = (1 << 24) / 8
)

// packPixels flattens src into little-endian 0xAABBGGRR words.
func packPixels(src *image.NRGBA) []byte {
	b := src.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := src.PixOffset(b.Min.X, y)
		out = append(out, src.Pix[i:i+b.Dx()*4]...)
	}
	return out
}

func unpackPixels(data []byte, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(r)
	copy(dst.Pix, data)
	return dst
}

// buildAllowedBitmap sets bit c.Packed() for every allowed colour. The
// result is read by the shader as little-endian u32 words. A nil set
// yields a minimal placeholder buffer.
func buildAllowedBitmap(allowed *palette.Set) []byte {
	if allowed == nil {
		return make([]byte, 16)
	}
	bitmap := make([]byte, bitmapSize)
	for _, c := range allowed.Colors() {
		p := c.Packed()
		bitmap[p>>3] |= 1 << (p & 7)
	}
	return bitmap
}

func makeParams(w, h uint32, enabled bool) []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], w)
	binary.LittleEndian.PutUint32(buf[4:], h)
	if enabled {
		binary.LittleEndian.PutUint32(buf[8:], 1)
	}
	return buf
}
