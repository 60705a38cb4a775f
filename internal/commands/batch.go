package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/embeds"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
)

// batchTimeout 全タイルを取り直すので通常のコマンドより長く待つ
const batchTimeout = 10 * time.Minute

// BatchCommand ライブタイルを取り直してレイヤー統計を再計算
type BatchCommand struct {
	engine Engine
}

func NewBatchCommand(engine Engine) *BatchCommand {
	return &BatchCommand{engine: engine}
}

func (c *BatchCommand) Name() string {
	return "batch"
}

func (c *BatchCommand) Description() string {
	return "ライブタイルを取得してレイヤーの統計を再計算します"
}

func (c *BatchCommand) run(key string) (*discordgo.MessageEmbed, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: layer name required", overlay.ErrInvalidInput)
	}
	ctx, cancel := contextWithTimeout(batchTimeout)
	defer cancel()

	report, err := c.engine.RunBatchStats(ctx, key)
	if err != nil {
		return nil, err
	}
	sum := stats.Summarize(c.engine.AggregatedStats(key), false)
	embed := embeds.BuildProgressEmbed(key+" の再計算結果", sum)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("タイル %d 枚中 %d 枚成功 / 失敗 %d 枚 (%s)",
			report.Tiles, report.Processed, report.Failed, report.Duration.Round(time.Millisecond)),
	}
	return embed, nil
}

func batchErrorMessage(err error) string {
	switch {
	case errors.Is(err, overlay.ErrLayerNotFound):
		return "❌ レイヤーが見つかりません"
	case errors.Is(err, overlay.ErrInvalidInput):
		return "❌ 使用方法: `batch <レイヤー名>`"
	}
	return "❌ 再計算に失敗しました: " + err.Error()
}

func (c *BatchCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	var key string
	if len(args) > 0 {
		key = args[0]
	}
	if key != "" {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("⏳ `%s` の統計を再計算しています…", key))
	}
	embed, err := c.run(key)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, batchErrorMessage(err))
		return sendErr
	}
	_, err = s.ChannelMessageSendEmbed(m.ChannelID, embed)
	return err
}

func (c *BatchCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	var key string
	if opt, ok := optionMap(i)["layer"]; ok {
		key = opt.StringValue()
	}
	if err := respondDeferred(s, i); err != nil {
		return err
	}
	embed, err := c.run(key)
	if err != nil {
		return followup(s, i, &discordgo.WebhookParams{Content: batchErrorMessage(err)})
	}
	return followup(s, i, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}})
}

func (c *BatchCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "layer",
				Description: "対象のレイヤー名",
				Required:    true,
			},
		},
	}
}
