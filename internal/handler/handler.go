package handler

import (
	"go.uber.org/zap"

	"wplace_overlay/internal/commands"
)

// Options Handler の依存
type Options struct {
	Prefix  string
	GuildID string // 空ならグローバルコマンドとして同期
	Engine  commands.Engine
	Tiles   commands.TileFetcher
	Logger  *zap.Logger
}

// テキストコマンドの短縮名
var aliases = map[string][]string{
	"overlaytile": {"tile"},
	"progress":    {"p"},
	"overlaymode": {"mode"},
}

type Handler struct {
	registry *commands.Registry
	prefix   string
	guildID  string
	engine   commands.Engine
	logger   *zap.Logger
}

func NewHandler(opts Options) *Handler {
	registry := commands.NewRegistry()

	// すべてのコマンドを配列で一元管理
	commandsList := []commands.Command{
		&commands.PingCommand{},
		commands.NewConvertCommand(),
		commands.NewProgressCommand(opts.Engine),
		commands.NewLayersCommand(opts.Engine),
		commands.NewModeCommand(opts.Engine),
		commands.NewAddLayerCommand(opts.Engine),
		commands.NewBatchCommand(opts.Engine),
	}
	if opts.Tiles != nil {
		commandsList = append(commandsList, commands.NewOverlayTileCommand(opts.Engine, opts.Tiles))
	}
	// HelpCommandは最後に追加し、registryを渡す
	commandsList = append(commandsList, commands.NewHelpCommand(registry, opts.Prefix))

	for _, cmd := range commandsList {
		registry.Register(cmd, aliases[cmd.Name()]...)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		prefix:   opts.Prefix,
		guildID:  opts.GuildID,
		engine:   opts.Engine,
		logger:   logger.Named("discord"),
	}
}

// Registry 登録済みコマンド
func (h *Handler) Registry() *commands.Registry {
	return h.registry
}
