package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"wplace_overlay/internal/utils"
)

// ConvertResponse describes one map position in both coordinate systems.
type ConvertResponse struct {
	TileX  int     `json:"tile_x"`
	TileY  int     `json:"tile_y"`
	PixelX int     `json:"pixel_x"`
	PixelY int     `json:"pixel_y"`
	Coords string  `json:"coords"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	URL    string  `json:"url"`
}

// convert serves GET /convert?coords=tx-ty-px-py or ?lat=..&lng=..
func (s *Server) convert(c *fiber.Ctx) error {
	var coord *utils.Coordinate
	if raw := c.Query("coords"); raw != "" {
		var err error
		if coord, err = utils.ParseHyphenCoords(raw); err != nil {
			return badRequest(err.Error())
		}
	} else {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return badRequest("pass coords=tileX-tileY-pixelX-pixelY or numeric lat and lng")
		}
		if lng < -180 || lng >= 180 || lat < -90 || lat > 90 {
			return badRequest("lat/lng out of range")
		}
		coord = utils.LngLatToTilePixel(lng, utils.ClampLatitude(lat))
	}

	// centre of the pixel, matching what the wplace UI shows
	ll := utils.PixelToLatLng(
		float64(coord.TileX*utils.WplaceTileSize+coord.PixelX)+0.5,
		float64(coord.TileY*utils.WplaceTileSize+coord.PixelY)+0.5,
		utils.WplaceZoom)
	return c.JSON(ConvertResponse{
		TileX:  coord.TileX,
		TileY:  coord.TileY,
		PixelX: coord.PixelX,
		PixelY: coord.PixelY,
		Coords: utils.FormatHyphenCoords(coord),
		Lat:    ll.Lat,
		Lng:    ll.Lng,
		URL:    utils.BuildWplaceURL(ll.Lng, ll.Lat, 14),
	})
}
