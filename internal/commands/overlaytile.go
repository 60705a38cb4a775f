package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/utils"
)

// OverlayTileCommand ライブタイルにオーバーレイを合成して表示
type OverlayTileCommand struct {
	engine Engine
	tiles  TileFetcher
}

func NewOverlayTileCommand(engine Engine, tiles TileFetcher) *OverlayTileCommand {
	return &OverlayTileCommand{engine: engine, tiles: tiles}
}

func (c *OverlayTileCommand) Name() string {
	return "overlaytile"
}

func (c *OverlayTileCommand) Description() string {
	return "指定タイルにオーバーレイを重ねた画像を表示します"
}

// parseTileArgs "TlX TlY" / "TlX-TlY" / "TlX-TlY-PxX-PxY" を受け付ける
func parseTileArgs(args []string) (overlay.TileAddress, error) {
	var parts []string
	switch {
	case len(args) >= 2:
		parts = args[:2]
	case len(args) == 1:
		parts = strings.Split(args[0], "-")
		if len(parts) == 4 {
			coord, err := utils.ParseHyphenCoords(args[0])
			if err != nil {
				return overlay.TileAddress{}, err
			}
			return overlay.TileAddress{X: coord.TileX, Y: coord.TileY}, nil
		}
	}
	if len(parts) != 2 {
		return overlay.TileAddress{}, fmt.Errorf("%w: want <TlX> <TlY>", overlay.ErrInvalidInput)
	}
	x, err1 := strconv.Atoi(parts[0])
	y, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return overlay.TileAddress{}, fmt.Errorf("%w: tile must be numeric", overlay.ErrInvalidInput)
	}
	if x < 0 || x >= utils.WplaceTilesPerEdge || y < 0 || y >= utils.WplaceTilesPerEdge {
		return overlay.TileAddress{}, fmt.Errorf("%w: tile out of range", overlay.ErrInvalidInput)
	}
	return overlay.TileAddress{X: x, Y: y}, nil
}

func (c *OverlayTileCommand) render(addr overlay.TileAddress) (*discordgo.File, error) {
	ctx, cancel := newCommandContext()
	defer cancel()

	base, err := c.tiles.FetchTile(ctx, addr.X, addr.Y)
	if err != nil {
		return nil, fmt.Errorf("タイル取得に失敗しました: %w", err)
	}
	out, err := c.engine.RenderTile(ctx, addr, base)
	if err != nil {
		return nil, fmt.Errorf("合成に失敗しました: %w", err)
	}
	return utils.PNGAttachment(fmt.Sprintf("tile_%d_%d", addr.X, addr.Y), out), nil
}

func (c *OverlayTileCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	addr, err := parseTileArgs(args)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, "❌ 使用方法: `overlaytile <TlX> <TlY>` または `overlaytile <TlX-TlY>`")
		return sendErr
	}
	s.ChannelTyping(m.ChannelID)
	file, err := c.render(addr)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, "❌ "+err.Error())
		return sendErr
	}
	_, err = s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("🧩 タイル `%s`", addr.Key()),
		Files:   []*discordgo.File{file},
	})
	return err
}

func (c *OverlayTileCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := optionMap(i)
	tlx, ok1 := opts["tlx"]
	tly, ok2 := opts["tly"]
	if !ok1 || !ok2 {
		return respondEphemeral(s, i, "❌ tlx と tly を指定してください")
	}
	addr, err := parseTileArgs([]string{strconv.FormatInt(tlx.IntValue(), 10), strconv.FormatInt(tly.IntValue(), 10)})
	if err != nil {
		return respondEphemeral(s, i, "❌ "+err.Error())
	}

	if err := respondDeferred(s, i); err != nil {
		return err
	}
	file, err := c.render(addr)
	if err != nil {
		return followup(s, i, &discordgo.WebhookParams{Content: "❌ " + err.Error()})
	}
	return followup(s, i, &discordgo.WebhookParams{
		Content: fmt.Sprintf("🧩 タイル `%s`", addr.Key()),
		Files:   []*discordgo.File{file},
	})
}

func (c *OverlayTileCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minTile := 0.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "tlx",
				Description: "タイルX座標",
				Required:    true,
				MinValue:    &minTile,
				MaxValue:    utils.WplaceTilesPerEdge - 1,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "tly",
				Description: "タイルY座標",
				Required:    true,
				MinValue:    &minTile,
				MaxValue:    utils.WplaceTilesPerEdge - 1,
			},
		},
	}
}
