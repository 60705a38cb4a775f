package overlay

import (
	"fmt"
	"image"
	"image/draw"
)

// Split cuts img into tile-aligned slices starting at anchor. Bands are
// sized so that no slice crosses a tile edge; together the slices cover
// every image pixel exactly once.
func Split(img image.Image, anchor Anchor, tileSize int) (map[SliceKey]*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size %d", ErrInvalidInput, tileSize)
	}
	if anchor.Pixel.X < 0 || anchor.Pixel.X >= tileSize || anchor.Pixel.Y < 0 || anchor.Pixel.Y >= tileSize {
		return nil, fmt.Errorf("%w: anchor pixel (%d,%d) outside tile", ErrInvalidInput, anchor.Pixel.X, anchor.Pixel.Y)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make(map[SliceKey]*image.NRGBA)

	for y := 0; y < h; {
		absY := anchor.Pixel.Y + y
		bandH := min(h-y, tileSize-absY%tileSize)

		for x := 0; x < w; {
			absX := anchor.Pixel.X + x
			bandW := min(w-x, tileSize-absX%tileSize)

			key := SliceKey{
				Tile: TileAddress{
					X: anchor.Tile.X + absX/tileSize,
					Y: anchor.Tile.Y + absY/tileSize,
				},
				Offset: LocalPixel{X: absX % tileSize, Y: absY % tileSize},
			}
			src := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+bandW, b.Min.Y+y+bandH)
			out[key] = crop(img, src)

			x += bandW
		}
		y += bandH
	}
	return out, nil
}

// Reassemble draws slices back into a w x h image anchored at anchor.
func Reassemble(slices map[SliceKey]*image.NRGBA, anchor Anchor, tileSize, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for key, s := range slices {
		absX := (key.Tile.X-anchor.Tile.X)*tileSize + key.Offset.X
		absY := (key.Tile.Y-anchor.Tile.Y)*tileSize + key.Offset.Y
		at := image.Pt(absX-anchor.Pixel.X, absY-anchor.Pixel.Y)
		CopyNRGBA(dst, at, s, s.Bounds())
	}
	return dst
}

// CopyNRGBA copies r of src into dst at dp byte for byte. Unlike draw.Draw
// it never round-trips through premultiplied colour, so RGB stays exact
// for translucent pixels.
func CopyNRGBA(dst *image.NRGBA, dp image.Point, src *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(src.Bounds())
	dr := image.Rectangle{Min: dp, Max: dp.Add(r.Size())}.Intersect(dst.Bounds())
	if dr.Empty() {
		return
	}
	r.Min = r.Min.Add(dr.Min.Sub(dp))
	rowBytes := dr.Dx() * 4
	for y := 0; y < dr.Dy(); y++ {
		si := src.PixOffset(r.Min.X, r.Min.Y+y)
		di := dst.PixOffset(dr.Min.X, dr.Min.Y+y)
		copy(dst.Pix[di:di+rowBytes], src.Pix[si:si+rowBytes])
	}
}

// ToNRGBA returns img as an *image.NRGBA with bounds at the origin,
// copying only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	return crop(img, img.Bounds())
}

func crop(img image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if n, ok := img.(*image.NRGBA); ok {
		CopyNRGBA(dst, image.Point{}, n, r)
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
