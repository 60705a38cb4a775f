package commands

import (
	"context"
	"image"
	"time"

	"github.com/bwmarrin/discordgo"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
)

// commandTimeout 1コマンドあたりの処理時間上限
const commandTimeout = 60 * time.Second

// Engine コマンドが使うオーバーレイエンジンの操作
type Engine interface {
	RenderTile(ctx context.Context, addr overlay.TileAddress, base []byte) ([]byte, error)
	AddLayer(ctx context.Context, key string, img image.Image, anchor overlay.Anchor) (*overlay.Layer, error)
	RemoveLayer(ctx context.Context, key string) error
	SetDrawEnabled(ctx context.Context, key string, enabled bool) (*overlay.Layer, error)
	Layers() []*overlay.Layer
	Layer(key string) (*overlay.Layer, bool)
	AggregatedStats(layerKeys ...string) map[string]stats.Counts
	PerTileStats(layerKey string) map[string]stats.ColorStats
	RunBatchStats(ctx context.Context, layerKey string) (stats.Report, error)
	Params() compositor.Params
	CachingEnabled() bool
	SetEnhancementMode(ctx context.Context, mode enhance.Mode) error
}

// TileFetcher ライブタイルの取得
type TileFetcher interface {
	FetchTile(ctx context.Context, x, y int) ([]byte, error)
}

func newCommandContext() (context.Context, context.CancelFunc) {
	return contextWithTimeout(commandTimeout)
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func respondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followup(s *discordgo.Session, i *discordgo.InteractionCreate, params *discordgo.WebhookParams) error {
	_, err := s.FollowupMessageCreate(i.Interaction, false, params)
	return err
}
