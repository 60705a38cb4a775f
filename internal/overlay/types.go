// Package overlay anchors artwork onto the tile grid: slicing an image into
// tile-aligned pieces and keeping the set of active layers.
package overlay

import (
	"errors"
	"fmt"
	"image"

	"wplace_overlay/internal/utils"
)

// TileSize is the edge length of one map tile in pixels.
const TileSize = utils.WplaceTileSize

// ErrInvalidInput marks caller mistakes (nil image, bad anchor, bad tile size).
var ErrInvalidInput = errors.New("invalid overlay input")

// ErrLayerNotFound is returned when a layer key is unknown.
var ErrLayerNotFound = errors.New("overlay layer not found")

// TileAddress identifies one tile of the world grid.
type TileAddress struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key is the "tileX,tileY" form used by the tile cache and per-tile stats.
func (a TileAddress) Key() string {
	return fmt.Sprintf("%d,%d", a.X, a.Y)
}

// LocalPixel is a pixel position inside a tile.
type LocalPixel struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Point converts to an image.Point.
func (p LocalPixel) Point() image.Point {
	return image.Pt(p.X, p.Y)
}

// Anchor places the top-left pixel of an image on the map.
type Anchor struct {
	Tile  TileAddress `json:"tile"`
	Pixel LocalPixel  `json:"pixel"`
}

// AnchorFromCoordinate converts the utils coordinate form.
func AnchorFromCoordinate(c *utils.Coordinate) Anchor {
	return Anchor{
		Tile:  TileAddress{X: c.TileX, Y: c.TileY},
		Pixel: LocalPixel{X: c.PixelX, Y: c.PixelY},
	}
}

// SliceKey identifies a slice by covering tile and local offset.
type SliceKey struct {
	Tile   TileAddress
	Offset LocalPixel
}

// String renders the zero padded "tileX,tileY,offsetX,offsetY" form.
func (k SliceKey) String() string {
	return fmt.Sprintf("%04d,%04d,%03d,%03d", k.Tile.X, k.Tile.Y, k.Offset.X, k.Offset.Y)
}

// Slice is the part of an overlay image that falls inside one tile.
// Image bounds always start at (0,0).
type Slice struct {
	Key   SliceKey
	Image *image.NRGBA
}
