package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/embeds"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
)

const progressMapFile = "progress.png"

// ProgressCommand レイヤーの色別進捗と進捗マップを表示
type ProgressCommand struct {
	engine Engine
}

func NewProgressCommand(engine Engine) *ProgressCommand {
	return &ProgressCommand{engine: engine}
}

func (c *ProgressCommand) Name() string {
	return "progress"
}

func (c *ProgressCommand) Description() string {
	return "オーバーレイの完成度を色別に表示します"
}

// build layerKey が空なら全レイヤー合算。単一レイヤーの場合は進捗マップを添付する
func (c *ProgressCommand) build(layerKey string, bucket bool) (*discordgo.MessageEmbed, *discordgo.File, error) {
	if layerKey == "" {
		sum := stats.Summarize(c.engine.AggregatedStats(), bucket)
		return embeds.BuildProgressEmbed("全レイヤーの進捗", sum), nil, nil
	}

	layer, ok := c.engine.Layer(layerKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, layerKey)
	}
	sum := stats.Summarize(c.engine.AggregatedStats(layerKey), bucket)
	embed := embeds.BuildProgressEmbed(layerKey+" の進捗", sum)

	progress := stats.PerTileProgress(c.engine.PerTileStats(layerKey))
	if worst := embeds.WorstTiles(progress, 5); len(worst) > 0 {
		byTile := make(map[string]stats.TileProgress, len(progress))
		for _, p := range progress {
			byTile[p.Tile] = p
		}
		var b strings.Builder
		for _, addr := range worst {
			t := byTile[addr.Key()]
			fmt.Fprintf(&b, "`%s` %.2f%% (%d/%d)\n", t.Tile, stats.Percent(t.Matched, t.Total), t.Matched, t.Total)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🧱 遅れているタイル", Value: b.String()})
	}

	buf, err := embeds.BuildProgressMapPNG(layer, progress, 32)
	if err != nil {
		return nil, nil, err
	}
	embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + progressMapFile}
	return embed, &discordgo.File{Name: progressMapFile, ContentType: "image/png", Reader: buf}, nil
}

func (c *ProgressCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	var key string
	bucket := false
	for _, a := range args {
		if a == "--palette" {
			bucket = true
			continue
		}
		if key == "" {
			key = a
		}
	}

	embed, file, err := c.build(key, bucket)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, "❌ "+err.Error())
		return sendErr
	}
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if file != nil {
		msg.Files = []*discordgo.File{file}
	}
	_, err = s.ChannelMessageSendComplex(m.ChannelID, msg)
	return err
}

func (c *ProgressCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := optionMap(i)
	var key string
	if opt, ok := opts["layer"]; ok {
		key = opt.StringValue()
	}
	bucket := false
	if opt, ok := opts["palette"]; ok {
		bucket = opt.BoolValue()
	}

	if err := respondDeferred(s, i); err != nil {
		return err
	}
	embed, file, err := c.build(key, bucket)
	if err != nil {
		return followup(s, i, &discordgo.WebhookParams{Content: "❌ " + err.Error()})
	}
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
	if file != nil {
		params.Files = []*discordgo.File{file}
	}
	return followup(s, i, params)
}

func (c *ProgressCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "layer",
				Description: "レイヤー名（省略時は全レイヤー）",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "palette",
				Description: "パレット外の色を「その他」にまとめる",
			},
		},
	}
}
