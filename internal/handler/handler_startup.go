package handler

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (h *Handler) OnReady(s *discordgo.Session, event *discordgo.Ready) {
	h.logger.Info("discord session ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)))

	// スラッシュコマンドを同期
	if err := h.SyncSlashCommands(s); err != nil {
		h.logger.Error("slash command sync failed", zap.Error(err))
	}
}
