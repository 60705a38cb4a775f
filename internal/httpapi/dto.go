package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/utils"
)

var validate = validator.New()

// FilterRequest enables a set of palette colours. Enabled=false shows
// every colour; an empty IDs list with Enabled=true shows nothing.
type FilterRequest struct {
	Enabled bool  `json:"enabled"`
	IDs     []int `json:"ids" validate:"dive,min=1,max=63"`
}

type ModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

type DeviceRequest struct {
	Device string `json:"device" validate:"required,oneof=gpu cpu"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// AnchorForm is the anchor part of POST /layers: either coords
// ("tileX-tileY-pixelX-pixelY") or lat and lng.
type AnchorForm struct {
	Key    string   `form:"key" validate:"omitempty,max=64"`
	Coords string   `form:"coords" validate:"required_without_all=Lat Lng"`
	Lat    *float64 `form:"lat" validate:"omitempty,min=-85.0511287798,max=85.0511287798"`
	Lng    *float64 `form:"lng" validate:"omitempty,min=-180,max=180"`
}

func (f AnchorForm) anchor() (overlay.Anchor, error) {
	if f.Coords != "" {
		c, err := utils.ParseHyphenCoords(f.Coords)
		if err != nil {
			return overlay.Anchor{}, badRequest(err.Error())
		}
		return overlay.AnchorFromCoordinate(c), nil
	}
	if f.Lat == nil || f.Lng == nil {
		return overlay.Anchor{}, badRequest("lat and lng must be given together")
	}
	return overlay.AnchorFromCoordinate(utils.LngLatToTilePixel(*f.Lng, *f.Lat)), nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return badRequest("invalid request body")
	}
	return validateStruct(out)
}

func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func tileParams(c *fiber.Ctx) (overlay.TileAddress, error) {
	x, errX := strconv.Atoi(c.Params("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(c.Params("y"), ".png"))
	if errX != nil || errY != nil {
		return overlay.TileAddress{}, badRequest("tile coordinates must be integers")
	}
	if x < 0 || y < 0 || x >= utils.WplaceTilesPerEdge || y >= utils.WplaceTilesPerEdge {
		return overlay.TileAddress{}, badRequest(fmt.Sprintf("tile %d,%d out of range", x, y))
	}
	return overlay.TileAddress{X: x, Y: y}, nil
}

// LayerView is the JSON form of a layer.
type LayerView struct {
	Key         string                `json:"key"`
	Anchor      overlay.Anchor        `json:"anchor"`
	Coords      string                `json:"coords"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	DrawEnabled bool                  `json:"draw_enabled"`
	ZOrder      int                   `json:"z_order"`
	Tiles       []overlay.TileAddress `json:"tiles"`
	Link        string                `json:"link"`
}

func layerView(l *overlay.Layer) LayerView {
	coord := utils.Coordinate{
		TileX: l.Anchor.Tile.X, TileY: l.Anchor.Tile.Y,
		PixelX: l.Anchor.Pixel.X, PixelY: l.Anchor.Pixel.Y,
	}
	return LayerView{
		Key:         l.Key,
		Anchor:      l.Anchor,
		Coords:      utils.FormatHyphenCoords(&coord),
		Width:       l.Width,
		Height:      l.Height,
		DrawEnabled: l.DrawEnabled,
		ZOrder:      l.ZOrder,
		Tiles:       l.Tiles(),
		Link:        utils.LayerLink(coord, l.Width, l.Height),
	}
}
