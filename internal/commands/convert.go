package commands

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/embeds"
	"wplace_overlay/internal/utils"
)

var errConvertUsage = errors.New("convert: missing or malformed coordinates")

type ConvertCommand struct{}

func NewConvertCommand() *ConvertCommand {
	return &ConvertCommand{}
}

func (c *ConvertCommand) Name() string {
	return "convert"
}

func (c *ConvertCommand) Description() string {
	return "座標変換を行います（経度緯度 ⇄ ピクセル座標）"
}

// convertQuery どちらか一方だけが埋まる
type convertQuery struct {
	pixel    *utils.Coordinate
	lng, lat float64
}

func (q convertQuery) embed() *discordgo.MessageEmbed {
	if q.pixel != nil {
		return embeds.BuildConvertPixelEmbed(q.pixel)
	}
	return embeds.BuildConvertLngLatEmbed(q.lng, q.lat)
}

// parseConvertArgs テキストコマンドの引数を解釈する
// 受け付ける形式: wplace URL / TlX-TlY-PxX-PxY / <経度> <緯度>
func parseConvertArgs(args []string) (convertQuery, error) {
	if len(args) == 0 {
		return convertQuery{}, errConvertUsage
	}

	// URLから座標抽出
	// https://wplace.live/?lat=35.68...&lng=139.75...&zoom=...
	if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
		u, err := url.Parse(args[0])
		if err != nil {
			return convertQuery{}, errConvertUsage
		}
		lat, err1 := strconv.ParseFloat(u.Query().Get("lat"), 64)
		lng, err2 := strconv.ParseFloat(u.Query().Get("lng"), 64)
		if err1 != nil || err2 != nil {
			return convertQuery{}, errConvertUsage
		}
		return lngLatQuery(lng, lat)
	}

	// ハイフン形式の場合（例: 1818-806-989-358）
	if strings.Count(args[0], "-") == 3 && !strings.HasPrefix(args[0], "-") {
		coord, err := utils.ParseHyphenCoords(args[0])
		if err != nil {
			return convertQuery{}, fmt.Errorf("%w: %v", errConvertUsage, err)
		}
		return convertQuery{pixel: coord}, nil
	}

	// 経度緯度の場合（例: 139.7794 35.6833）
	if len(args) >= 2 {
		lng, err1 := strconv.ParseFloat(args[0], 64)
		lat, err2 := strconv.ParseFloat(args[1], 64)
		if err1 == nil && err2 == nil {
			return lngLatQuery(lng, lat)
		}
	}
	return convertQuery{}, errConvertUsage
}

func lngLatQuery(lng, lat float64) (convertQuery, error) {
	if lng < -180 || lng >= 180 || lat < -90 || lat > 90 {
		return convertQuery{}, fmt.Errorf("%w: lng/lat out of range", errConvertUsage)
	}
	return convertQuery{lng: lng, lat: lat}, nil
}

func (c *ConvertCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	q, err := parseConvertArgs(args)
	if err != nil {
		_, err := s.ChannelMessageSend(m.ChannelID, c.getUsageText())
		return err
	}
	_, err = s.ChannelMessageSendEmbed(m.ChannelID, q.embed())
	return err
}

func (c *ConvertCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	q, err := c.slashQuery(optionMap(i))
	if err != nil {
		return respondEphemeral(s, i, c.getUsageText())
	}
	return respondEmbed(s, i, q.embed())
}

func (c *ConvertCommand) slashQuery(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (convertQuery, error) {
	// 経度緯度 → ピクセル座標
	if lng, ok := opts["lng"]; ok {
		if lat, ok := opts["lat"]; ok {
			return lngLatQuery(lng.FloatValue(), lat.FloatValue())
		}
	}
	// ピクセル座標 → 経度緯度
	tlx, ok1 := opts["tlx"]
	tly, ok2 := opts["tly"]
	pxx, ok3 := opts["pxx"]
	pxy, ok4 := opts["pxy"]
	if ok1 && ok2 && ok3 && ok4 {
		return parseConvertArgs([]string{fmt.Sprintf("%d-%d-%d-%d",
			tlx.IntValue(), tly.IntValue(), pxx.IntValue(), pxy.IntValue())})
	}
	// ハイフン形式
	if coords, ok := opts["coords"]; ok {
		return parseConvertArgs([]string{coords.StringValue()})
	}
	return convertQuery{}, errConvertUsage
}

func (c *ConvertCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        "lng",
				Description: "経度 (-180 ~ 180)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        "lat",
				Description: "緯度 (-85 ~ 85)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "tlx",
				Description: "タイルX座標",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "tly",
				Description: "タイルY座標",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "pxx",
				Description: "ピクセルX座標 (0-999)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "pxy",
				Description: "ピクセルY座標 (0-999)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "coords",
				Description: "ハイフン形式 (例: 1818-806-989-358)",
			},
		},
	}
}

func (c *ConvertCommand) getUsageText() string {
	return "❌ 使用方法:\n" +
		"**経度緯度 → ピクセル:** `convert <経度> <緯度>` または `/convert lng:<経度> lat:<緯度>`\n" +
		"**ピクセル → 経度緯度:** `convert <TlX-TlY-PxX-PxY>` または `/convert tlx:<TlX> tly:<TlY> pxx:<PxX> pxy:<PxY>`\n" +
		"**URL:** `convert https://wplace.live/?lat=..&lng=..`\n\n" +
		"例:\n`!convert 139.7794 35.6833` (東京)\n`!convert 1818-806-989-358`"
}
