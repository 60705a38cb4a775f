package embeds

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/utils"
)

const (
	colorConvert  = 0x9B59B6 // Purple
	colorPixel    = 0x1ABC9C // Turquoise
	colorProgress = 0x2ECC71 // Green
	colorLayers   = 0x3498DB // Blue
	colorParams   = 0xF1C40F // Yellow
	maxColorRows  = 15
)

// BuildConvertLngLatEmbed 経度緯度 → ピクセル座標変換結果の埋め込みを作成
func BuildConvertLngLatEmbed(lng, lat float64) *discordgo.MessageEmbed {
	coord := utils.LngLatToTilePixel(lng, utils.ClampLatitude(lat))
	url := utils.BuildWplaceURL(lng, lat, 14.76)

	return &discordgo.MessageEmbed{
		Title:       "🗺️ 座標変換: 経度緯度 → ピクセル座標",
		Description: fmt.Sprintf("**入力:** 経度 `%.6f`, 緯度 `%.6f`", lng, lat),
		Color:       colorConvert,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📍 タイル座標", Value: fmt.Sprintf("TlX: `%d`, TlY: `%d`", coord.TileX, coord.TileY)},
			{Name: "🔲 ピクセル座標", Value: fmt.Sprintf("PxX: `%d`, PxY: `%d`", coord.PixelX, coord.PixelY)},
			{Name: "📋 ハイフン形式", Value: fmt.Sprintf("`%s`", utils.FormatHyphenCoords(coord))},
			{Name: "🔗 Wplace URL", Value: fmt.Sprintf("[地図を開く](%s)", url)},
		},
	}
}

// BuildConvertPixelEmbed ピクセル座標 → 経度緯度変換結果の埋め込みを作成
func BuildConvertPixelEmbed(coord *utils.Coordinate) *discordgo.MessageEmbed {
	ll := utils.TilePixelToLngLat(coord.TileX, coord.TileY, coord.PixelX, coord.PixelY)
	url := utils.BuildWplaceURL(ll.Lng, ll.Lat, 14.76)

	return &discordgo.MessageEmbed{
		Title: "🗺️ 座標変換: ピクセル座標 → 経度緯度",
		Description: fmt.Sprintf("**入力:** TlX `%d`, TlY `%d`, PxX `%d`, PxY `%d`",
			coord.TileX, coord.TileY, coord.PixelX, coord.PixelY),
		Color: colorPixel,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🌐 経度緯度", Value: fmt.Sprintf("経度: `%.6f`, 緯度: `%.6f`", ll.Lng, ll.Lat)},
			{Name: "📋 ハイフン形式", Value: fmt.Sprintf("`%s`", utils.FormatHyphenCoords(coord))},
			{Name: "🔗 Wplace URL", Value: fmt.Sprintf("[地図を開く](%s)", url)},
		},
	}
}

// BuildProgressEmbed 色別の進捗を表示する埋め込み
func BuildProgressEmbed(title string, sum stats.Summary) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📊 " + title,
		Color: colorProgress,
	}
	if sum.Total == 0 {
		embed.Description = "まだ統計がありません。タイルを表示するか `batch` で再計算してください。"
		return embed
	}

	embed.Description = fmt.Sprintf("%s **%.2f%%**\n完了 `%d` / 全体 `%d` (残り `%d`)",
		ProgressBar(sum.Percent, 20), sum.Percent, sum.Matched, sum.Total, sum.Remaining())

	var b strings.Builder
	for i, c := range sum.Colors {
		if i == maxColorRows {
			fmt.Fprintf(&b, "… 他 %d 色\n", len(sum.Colors)-maxColorRows)
			break
		}
		name := c.Name
		if name == "" {
			name = c.Key
		}
		fmt.Fprintf(&b, "`%-16s` %6.2f%%  %d/%d\n", name, c.Percent, c.Matched, c.Total)
	}
	embed.Fields = []*discordgo.MessageEmbedField{{Name: "🎨 色別", Value: b.String()}}
	return embed
}

// ProgressBar は percent を width 文字のバーにする
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(percent / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// BuildLayersEmbed レイヤー一覧
func BuildLayersEmbed(layers []*overlay.Layer) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🧩 オーバーレイ一覧",
		Color: colorLayers,
	}
	if len(layers) == 0 {
		embed.Description = "レイヤーは登録されていません。"
		return embed
	}
	for _, l := range layers {
		coord := utils.Coordinate{
			TileX: l.Anchor.Tile.X, TileY: l.Anchor.Tile.Y,
			PixelX: l.Anchor.Pixel.X, PixelY: l.Anchor.Pixel.Y,
		}
		state := "🟢 表示"
		if !l.DrawEnabled {
			state = "⚪ 非表示"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: l.Key,
			Value: fmt.Sprintf("%s | `%s` | %dx%d | タイル %d枚 | [地図](%s)",
				state, utils.FormatHyphenCoords(&coord), l.Width, l.Height, len(l.Tiles()),
				utils.LayerLink(coord, l.Width, l.Height)),
		})
	}
	return embed
}

// BuildParamsEmbed 現在の描画パラメータ
func BuildParamsEmbed(p compositor.Params, caching bool) *discordgo.MessageEmbed {
	filter := "なし (全色表示)"
	if p.Filter != nil {
		ids := p.Filter.IDs()
		filter = fmt.Sprintf("%d 色: %v", p.Filter.Len(), ids)
	}
	cache := "OFF"
	if caching {
		cache = "ON"
	}
	return &discordgo.MessageEmbed{
		Title: "⚙️ 描画設定",
		Color: colorParams,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "強調モード", Value: fmt.Sprintf("`%s`", p.Mode), Inline: true},
			{Name: "フィルタ処理", Value: fmt.Sprintf("`%s`", p.Device), Inline: true},
			{Name: "キャッシュ", Value: cache, Inline: true},
			{Name: "色フィルタ", Value: filter},
		},
	}
}
