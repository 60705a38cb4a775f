package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/embeds"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/overlay"
)

// ModeCommand 強調モードの確認と変更
type ModeCommand struct {
	engine Engine
}

func NewModeCommand(engine Engine) *ModeCommand {
	return &ModeCommand{engine: engine}
}

func (c *ModeCommand) Name() string {
	return "overlaymode"
}

func (c *ModeCommand) Description() string {
	return "オーバーレイの強調モードを表示・変更します"
}

// apply 空文字なら現在の設定を返すだけ
func (c *ModeCommand) apply(value string) (*discordgo.MessageEmbed, error) {
	if value != "" {
		mode, err := enhance.ParseMode(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
		}
		ctx, cancel := newCommandContext()
		defer cancel()
		if err := c.engine.SetEnhancementMode(ctx, mode); err != nil {
			return nil, err
		}
	}
	return embeds.BuildParamsEmbed(c.engine.Params(), c.engine.CachingEnabled()), nil
}

func (c *ModeCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	var value string
	if len(args) > 0 {
		value = args[0]
	}
	embed, err := c.apply(value)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("❌ モードは %v から選んでください", enhance.Modes()))
		return sendErr
	}
	_, err = s.ChannelMessageSendEmbed(m.ChannelID, embed)
	return err
}

func (c *ModeCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	var value string
	if opt, ok := optionMap(i)["mode"]; ok {
		value = opt.StringValue()
	}
	embed, err := c.apply(value)
	if err != nil {
		return respondEphemeral(s, i, "❌ "+err.Error())
	}
	return respondEmbed(s, i, embed)
}

func (c *ModeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	modes := enhance.Modes()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(modes))
	for _, m := range modes {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(m), Value: string(m)})
	}
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "強調モード（省略時は現在の設定を表示）",
				Choices:     choices,
			},
		},
	}
}
