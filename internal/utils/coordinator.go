package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// WplaceZoom Wplaceのズームレベル
	WplaceZoom = 11
	// WplaceTileSize タイル1枚のサイズ (px)
	WplaceTileSize = 1000
	// WplaceTilesPerEdge 1辺のタイル数 = 2^zoom
	WplaceTilesPerEdge = 1 << WplaceZoom // 2048

	// EarthRadius 球面メルカトルの地球半径 (m)
	EarthRadius = 6378137.0
	// MaxLatitude メルカトル投影で表現できる最大緯度
	MaxLatitude = 85.05112878
)

// originShift 赤道の半周 (m)
var originShift = math.Pi * EarthRadius

// Coordinate 座標データ
type Coordinate struct {
	TileX  int
	TileY  int
	PixelX int
	PixelY int
}

// LngLat 経度緯度
type LngLat struct {
	Lng float64
	Lat float64
}

// Resolution ズームレベルごとの 1px あたりのメートル数
func Resolution(zoom int) float64 {
	initial := 2 * originShift / WplaceTileSize
	return initial / math.Pow(2, float64(zoom))
}

// ClampLatitude 投影可能な範囲に緯度を丸める
func ClampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// LatLngToMeters 緯度経度をメルカトルのメートル座標へ
func LatLngToMeters(lat, lng float64) (float64, float64) {
	mx := lng / 180 * originShift
	my := math.Log(math.Tan((90+lat)*math.Pi/360)) / (math.Pi / 180)
	my = my * originShift / 180
	return mx, my
}

// LatLngToPixel 緯度経度からワールドピクセル座標を計算
func LatLngToPixel(lat, lng float64, zoom int) (float64, float64) {
	mx, my := LatLngToMeters(lat, lng)
	res := Resolution(zoom)
	return (mx + originShift) / res, (originShift - my) / res
}

// PixelToLatLng ワールドピクセル座標から緯度経度を計算 (LatLngToPixel の逆変換)
func PixelToLatLng(px, py float64, zoom int) LngLat {
	res := Resolution(zoom)
	mx := px*res - originShift
	my := originShift - py*res

	lng := mx / originShift * 180
	lat := 360/math.Pi*math.Atan(math.Exp(my/originShift*math.Pi)) - 90
	return LngLat{Lng: lng, Lat: lat}
}

// LatLngToTile 緯度経度を含むタイル番号
func LatLngToTile(lat, lng float64) (int, int) {
	px, py := LatLngToPixel(lat, lng, WplaceZoom)
	return int(math.Floor(px / WplaceTileSize)), int(math.Floor(py / WplaceTileSize))
}

// LngLatToTilePixel 経度緯度からタイル座標とピクセル座標を計算
func LngLatToTilePixel(lng, lat float64) *Coordinate {
	px, py := LatLngToPixel(lat, lng, WplaceZoom)
	x := int(math.Floor(px))
	y := int(math.Floor(py))

	return &Coordinate{
		TileX:  floorDiv(x, WplaceTileSize),
		TileY:  floorDiv(y, WplaceTileSize),
		PixelX: floorMod(x, WplaceTileSize),
		PixelY: floorMod(y, WplaceTileSize),
	}
}

// TilePixelToLngLat タイル座標とピクセル座標から経度緯度を計算
func TilePixelToLngLat(tileX, tileY, pixelX, pixelY int) *LngLat {
	px := float64(tileX*WplaceTileSize + pixelX)
	py := float64(tileY*WplaceTileSize + pixelY)
	ll := PixelToLatLng(px, py, WplaceZoom)
	return &ll
}

// BuildWplaceURL Wplace.liveのURLを生成
func BuildWplaceURL(lng, lat, zoom float64) string {
	return fmt.Sprintf("https://wplace.live/?lat=%.6f&lng=%.6f&zoom=%.2f",
		lat, lng, zoom)
}

// FormatHyphenCoords ハイフン形式の座標文字列を生成
func FormatHyphenCoords(coord *Coordinate) string {
	return fmt.Sprintf("%d-%d-%d-%d",
		coord.TileX, coord.TileY, coord.PixelX, coord.PixelY)
}

// ParseHyphenCoords "tileX-tileY-pixelX-pixelY" 形式を解析
func ParseHyphenCoords(s string) (*Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid coordinate %q: want tileX-tileY-pixelX-pixelY", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q: %w", s, err)
		}
		vals[i] = v
	}
	if vals[0] < 0 || vals[0] >= WplaceTilesPerEdge || vals[1] < 0 || vals[1] >= WplaceTilesPerEdge {
		return nil, fmt.Errorf("tile out of range in %q", s)
	}
	if vals[2] < 0 || vals[2] >= WplaceTileSize || vals[3] < 0 || vals[3] >= WplaceTileSize {
		return nil, fmt.Errorf("pixel out of range in %q", s)
	}
	return &Coordinate{TileX: vals[0], TileY: vals[1], PixelX: vals[2], PixelY: vals[3]}, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
