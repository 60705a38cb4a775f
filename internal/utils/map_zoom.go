package utils

import "math"

const (
	// standard web map tile edge used by the wplace front end
	webMapTileSize = 256.0
	// desktop viewport minus the wplace side panels
	viewportWidth  = 1280.0 * 0.82
	viewportHeight = 720.0 * 0.90
	zoomBias       = -0.43
	// tiles stop rendering below this zoom
	minLinkZoom = 10.7
	maxLinkZoom = 22.0
)

// FitZoom width x height ピクセルの範囲が画面に収まるズームを返す
func FitZoom(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return minLinkZoom
	}
	world := float64(WplaceTilesPerEdge * WplaceTileSize)
	zw := math.Log2(viewportWidth / (webMapTileSize * float64(width) / world))
	zh := math.Log2(viewportHeight / (webMapTileSize * float64(height) / world))
	z := math.Min(zw, zh) + zoomBias
	if math.IsNaN(z) || z < minLinkZoom {
		return minLinkZoom
	}
	return math.Min(z, maxLinkZoom)
}

// LayerLink は左上 anchor から width x height の範囲の中心を開く wplace URL
func LayerLink(c Coordinate, width, height int) string {
	cx := float64(c.TileX*WplaceTileSize+c.PixelX) + float64(width)/2
	cy := float64(c.TileY*WplaceTileSize+c.PixelY) + float64(height)/2
	ll := PixelToLatLng(cx, cy, WplaceZoom)
	return BuildWplaceURL(ll.Lng, ll.Lat, FitZoom(width, height))
}
