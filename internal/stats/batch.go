package stats

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
)

// TileSource fetches the current live tile bytes.
type TileSource interface {
	FetchTile(ctx context.Context, tileX, tileY int) ([]byte, error)
}

// BatchConfig throttles a batch run.
type BatchConfig struct {
	ChunkSize    int
	ChunkPause   time.Duration
	FetchTimeout time.Duration
}

// DefaultBatchConfig matches the upstream courtesy limits.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{ChunkSize: 4, ChunkPause: 200 * time.Millisecond, FetchTimeout: 10 * time.Second}
}

// Report summarises one batch run.
type Report struct {
	Tiles     int           `json:"tiles"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// BatchRunner recomputes the stats of a whole layer against freshly
// fetched live tiles.
type BatchRunner struct {
	source TileSource
	store  *Store
	cfg    BatchConfig
	logger *zap.Logger
}

func NewBatchRunner(source TileSource, store *Store, cfg BatchConfig, logger *zap.Logger) *BatchRunner {
	def := DefaultBatchConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkPause < 0 {
		cfg.ChunkPause = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	return &BatchRunner{source: source, store: store, cfg: cfg, logger: logger}
}

// Run processes every tile of layer in chunks. A tile that cannot be
// fetched or decoded is logged and skipped; the run always continues.
// Only ctx cancellation stops it early.
func (r *BatchRunner) Run(ctx context.Context, layer *overlay.Layer, allowed *palette.Set) Report {
	start := time.Now()
	tiles := layer.Tiles()
	report := Report{Tiles: len(tiles)}
	var processed, failed atomic.Int64

	for i := 0; i < len(tiles); i += r.cfg.ChunkSize {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && r.cfg.ChunkPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.ChunkPause):
			}
		}

		chunk := tiles[i:min(i+r.cfg.ChunkSize, len(tiles))]
		var g errgroup.Group
		g.SetLimit(r.cfg.ChunkSize)
		for _, addr := range chunk {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := r.processTile(ctx, layer, addr, allowed); err != nil {
					failed.Add(1)
					r.logger.Warn("batch stats: skipping tile",
						zap.String("layer", layer.Key),
						zap.String("tile", addr.Key()),
						zap.Error(err))
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.logger.Info("batch stats cancelled", zap.String("layer", layer.Key), zap.Error(err))
			break
		}
	}

	report.Processed = int(processed.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)
	r.logger.Info("batch stats finished",
		zap.String("layer", layer.Key),
		zap.Int("tiles", report.Tiles),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report
}

func (r *BatchRunner) processTile(ctx context.Context, layer *overlay.Layer, addr overlay.TileAddress, allowed *palette.Set) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	data, err := r.source.FetchTile(fetchCtx, addr.X, addr.Y)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	live, err := DecodeLiveTile(data)
	if err != nil {
		return err
	}

	st := NewColorStats()
	for _, s := range layer.SlicesFor(addr) {
		part := ComputeWithFilter(s.Image, live, s.Key.Offset.Point(), allowed)
		Merge(&st, part)
	}
	if !r.store.Record(layer, addr.Key(), st) {
		r.logger.Debug("layer gone, batch stats dropped", zap.String("layer", layer.Key), zap.String("tile", addr.Key()))
	}
	return nil
}

// DecodeLiveTile decodes tile bytes. The upstream 1x1 placeholder for
// never-painted tiles decodes to nil, meaning nothing is painted.
func DecodeLiveTile(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode live tile: %w", err)
	}
	if b := img.Bounds(); b.Dx() <= 1 && b.Dy() <= 1 {
		return nil, nil
	}
	return overlay.ToNRGBA(img), nil
}

// Merge adds src into dst.
func Merge(dst *ColorStats, src ColorStats) {
	for k, v := range src.Total {
		dst.Total[k] += v
	}
	for k, v := range src.Matched {
		dst.Matched[k] += v
	}
}
