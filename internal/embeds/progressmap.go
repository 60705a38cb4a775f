package embeds

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
	"strconv"
	"strings"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
)

// 統計が無いタイル
var noDataColor = color.RGBA{60, 60, 60, 255}

// BuildProgressMapPNG レイヤーが覆うタイルごとの完成度を色で塗った画像
// cellPx: 1タイルあたりの一辺のピクセル数
func BuildProgressMapPNG(layer *overlay.Layer, progress []stats.TileProgress, cellPx int) (*bytes.Buffer, error) {
	if cellPx <= 0 {
		cellPx = 32
	}
	tiles := layer.Tiles()
	minX, minY, maxX, maxY := math.MaxInt, math.MaxInt, math.MinInt, math.MinInt
	for _, t := range tiles {
		minX, minY = min(minX, t.X), min(minY, t.Y)
		maxX, maxY = max(maxX, t.X), max(maxY, t.Y)
	}
	if len(tiles) == 0 {
		minX, minY, maxX, maxY = 0, 0, 0, 0
	}
	gridW, gridH := maxX-minX+1, maxY-minY+1

	img := image.NewRGBA(image.Rect(0, 0, gridW*cellPx, gridH*cellPx))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	byTile := make(map[string]stats.TileProgress, len(progress))
	for _, p := range progress {
		byTile[p.Tile] = p
	}

	for _, t := range tiles {
		col := noDataColor
		if p, ok := byTile[t.Key()]; ok && p.Total > 0 {
			col = progressColor(float64(p.Matched) / float64(p.Total))
		}
		x0 := (t.X - minX) * cellPx
		y0 := (t.Y - minY) * cellPx
		// 1px の隙間でタイル境界を見せる
		rect := image.Rect(x0, y0, x0+cellPx-1, y0+cellPx-1)
		draw.Draw(img, rect, &image.Uniform{C: col}, image.Point{}, draw.Src)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf, nil
}

// progressColor 完成度(0..1)を 赤→黄→緑 にする
func progressColor(t float64) color.RGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	if t < 0.5 {
		u := t / 0.5
		return color.RGBA{220, uint8(40 + 180*u), 40, 255}
	}
	u := (t - 0.5) / 0.5
	return color.RGBA{uint8(220 - 180*u), 220, 40, 255}
}

// parseTileKey "x,y" → TileAddress
func parseTileKey(key string) (overlay.TileAddress, bool) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return overlay.TileAddress{}, false
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	return overlay.TileAddress{X: x, Y: y}, errX == nil && errY == nil
}

// WorstTiles 完成度の低い順に n 件のタイルを返す
func WorstTiles(progress []stats.TileProgress, n int) []overlay.TileAddress {
	type scored struct {
		addr  overlay.TileAddress
		ratio float64
	}
	var list []scored
	for _, p := range progress {
		addr, ok := parseTileKey(p.Tile)
		if !ok || p.Total == 0 || p.Matched == p.Total {
			continue
		}
		list = append(list, scored{addr, float64(p.Matched) / float64(p.Total)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ratio < list[j].ratio })
	out := make([]overlay.TileAddress, 0, n)
	for i := 0; i < len(list) && i < n; i++ {
		out = append(out, list[i].addr)
	}
	return out
}
