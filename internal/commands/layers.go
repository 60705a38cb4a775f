package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/embeds"
	"wplace_overlay/internal/overlay"
)

// LayersCommand レイヤーの一覧と表示切替・削除
type LayersCommand struct {
	engine Engine
}

func NewLayersCommand(engine Engine) *LayersCommand {
	return &LayersCommand{engine: engine}
}

func (c *LayersCommand) Name() string {
	return "layers"
}

func (c *LayersCommand) Description() string {
	return "オーバーレイの一覧・表示切替・削除を行います"
}

// run action: list / show / hide / remove
func (c *LayersCommand) run(action, key string) (*discordgo.MessageEmbed, string, error) {
	action = strings.ToLower(action)
	if action == "" || action == "list" {
		return embeds.BuildLayersEmbed(c.engine.Layers()), "", nil
	}
	if key == "" {
		return nil, "", fmt.Errorf("%w: layer name required", overlay.ErrInvalidInput)
	}

	ctx, cancel := newCommandContext()
	defer cancel()
	switch action {
	case "show", "hide":
		if _, err := c.engine.SetDrawEnabled(ctx, key, action == "show"); err != nil {
			return nil, "", err
		}
		state := "表示"
		if action == "hide" {
			state = "非表示"
		}
		return nil, fmt.Sprintf("✅ `%s` を%sにしました", key, state), nil
	case "remove":
		if err := c.engine.RemoveLayer(ctx, key); err != nil {
			return nil, "", err
		}
		return nil, fmt.Sprintf("🗑️ `%s` を削除しました", key), nil
	}
	return nil, "", fmt.Errorf("%w: unknown action %q", overlay.ErrInvalidInput, action)
}

func layerErrorMessage(err error) string {
	if errors.Is(err, overlay.ErrLayerNotFound) {
		return "❌ レイヤーが見つかりません"
	}
	return "❌ " + err.Error()
}

func (c *LayersCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	var action, key string
	if len(args) > 0 {
		action = args[0]
	}
	if len(args) > 1 {
		key = args[1]
	}
	embed, content, err := c.run(action, key)
	if err != nil {
		_, sendErr := s.ChannelMessageSend(m.ChannelID, layerErrorMessage(err))
		return sendErr
	}
	if embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, embed)
		return err
	}
	_, err = s.ChannelMessageSend(m.ChannelID, content)
	return err
}

func (c *LayersCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := optionMap(i)
	var action, key string
	if opt, ok := opts["action"]; ok {
		action = opt.StringValue()
	}
	if opt, ok := opts["layer"]; ok {
		key = opt.StringValue()
	}
	embed, content, err := c.run(action, key)
	if err != nil {
		return respondEphemeral(s, i, layerErrorMessage(err))
	}
	if embed != nil {
		return respondEmbed(s, i, embed)
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func (c *LayersCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "action",
				Description: "操作",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "一覧", Value: "list"},
					{Name: "表示", Value: "show"},
					{Name: "非表示", Value: "hide"},
					{Name: "削除", Value: "remove"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "layer",
				Description: "対象のレイヤー名",
			},
		},
	}
}
