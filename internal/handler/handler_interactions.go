package handler

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// OnInteractionCreate スラッシュコマンドハンドラー
func (h *Handler) OnInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleSlashCommand(s, i)
	default:
		h.logger.Debug("ignoring interaction", zap.Int("type", int(i.Type)))
	}
}

func (h *Handler) handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	cmdName := i.ApplicationCommandData().Name
	log := h.logger.With(zap.String("command", cmdName))

	cmd, exists := h.registry.Get(cmdName)
	if !exists {
		log.Warn("unknown slash command")
		return
	}

	if err := cmd.ExecuteSlash(s, i); err != nil {
		log.Error("slash command failed", zap.Error(err))
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "An error occurred while executing the command.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}
}
