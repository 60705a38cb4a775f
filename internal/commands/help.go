package commands

import (
	"github.com/bwmarrin/discordgo"
)

type HelpCommand struct {
	registry *Registry
	prefix   string
}

func NewHelpCommand(registry *Registry, prefix string) *HelpCommand {
	return &HelpCommand{registry: registry, prefix: prefix}
}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Description() string {
	return "利用可能なコマンド一覧を表示します"
}

func (c *HelpCommand) ExecuteText(s *discordgo.Session, m *discordgo.MessageCreate, args []string) error {
	_, err := s.ChannelMessageSendEmbed(m.ChannelID, c.buildHelpEmbed())
	return err
}

func (c *HelpCommand) ExecuteSlash(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return respondEmbed(s, i, c.buildHelpEmbed())
}

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *HelpCommand) buildHelpEmbed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "📋 コマンド一覧",
		Description: "利用可能なコマンドを表示しています。詳細は各コマンドを実行してください。",
		Color:       0x5865F2, // Discord Blurple
	}
	for _, cmd := range c.registry.All() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "🔹 " + cmd.Name(),
			Value: cmd.Description(),
		})
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "テキストコマンドは " + c.prefix + " プレフィックスを使用してください。スラッシュコマンドも利用可能です。",
	}
	return embed
}
