package handler

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"wplace_overlay/internal/utils"
)

// parseCommand プレフィックス付きメッセージをコマンド名と引数に分ける
func parseCommand(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	parts := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(parts) == 0 {
		return "", nil, false
	}
	return parts[0], parts[1:], true
}

func (h *Handler) OnMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Botメッセージを無視
	if m.Author == nil || m.Author.Bot {
		return
	}

	cmdName, args, ok := parseCommand(h.prefix, m.Content)
	if !ok {
		return
	}
	log := h.logger.With(
		zap.String("command", cmdName),
		zap.String("user", utils.FormatUserDisplayName(m.Author.Username, m.Author.ID)))

	// コマンド実行
	cmd, exists := h.registry.Get(cmdName)
	if !exists {
		if name, shortcutArgs, ok := h.resolveShortcut(cmdName); ok {
			cmd, _ = h.registry.Get(name)
			args = append(shortcutArgs, args...)
		}
	}
	if cmd == nil {
		log.Debug("unknown text command")
		return
	}

	log.Debug("executing text command", zap.Strings("args", args))
	if err := cmd.ExecuteText(s, m, args); err != nil {
		log.Error("text command failed", zap.Error(err))
		s.ChannelMessageSend(m.ChannelID, "An error occurred while executing the command.")
	}
}
