package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/tilecache"
)

// ErrBatchUnavailable is returned when no live tile source is configured.
var ErrBatchUnavailable = errors.New("batch statistics unavailable")

// Deps wires an Engine.
type Deps struct {
	Registry   *overlay.Registry
	Compositor *Compositor
	Cache      *tilecache.Cache
	Stats      *stats.Store
	Batch      *stats.BatchRunner
	Logger     *zap.Logger
	// OnParamsChange is called after every parameter change.
	OnParamsChange func(p Params, cachingEnabled bool)
}

// Engine is the entry point used by every front end: tile rendering with
// the caching policy, layer management, parameters and statistics.
type Engine struct {
	registry *overlay.Registry
	comp     *Compositor
	cache    *tilecache.Cache
	stats    *stats.Store
	batch    *stats.BatchRunner
	logger   *zap.Logger
	onChange func(Params, bool)

	mu             sync.RWMutex
	params         Params
	cachingEnabled bool

	// generation changes on every invalidation so that a composite started
	// under old parameters is never written back to the cache. writeMu makes
	// the generation check and the cache write one step against a bump.
	generation atomic.Uint64
	writeMu    sync.Mutex
}

func NewEngine(d Deps, initial Params, cachingEnabled bool) *Engine {
	d.Stats.SetLayerCheck(d.Registry.Current)
	if initial.Mode == "" {
		initial.Mode = enhance.ModeDot
	}
	if initial.Device == "" {
		initial.Device = filter.DeviceCPU
	}
	return &Engine{
		registry:       d.Registry,
		comp:           d.Compositor,
		cache:          d.Cache,
		stats:          d.Stats,
		batch:          d.Batch,
		logger:         d.Logger,
		onChange:       d.OnParamsChange,
		params:         initial,
		cachingEnabled: cachingEnabled,
	}
}

func (e *Engine) snapshot() (Params, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params, e.cachingEnabled
}

// Params returns the current render parameters.
func (e *Engine) Params() Params {
	p, _ := e.snapshot()
	return p
}

// CachingEnabled reports the caching flag.
func (e *Engine) CachingEnabled() bool {
	_, c := e.snapshot()
	return c
}

// RenderTile composites addr over base, applying the caching policy:
//
//	caching off, no entry -> compute, do not cache
//	caching off, entry    -> compute and refresh the entry
//	caching on,  no entry -> compute and cache
//	caching on,  entry    -> return the cached bytes
//
// Base bytes that cannot be decoded are returned unchanged.
func (e *Engine) RenderTile(ctx context.Context, addr overlay.TileAddress, base []byte) ([]byte, error) {
	params, caching := e.snapshot()
	gen := e.generation.Load()
	key := addr.Key()

	var store bool
	if caching {
		data, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			e.logger.Warn("tile cache read failed", zap.String("tile", key), zap.Error(err))
		case ok:
			return data, nil
		}
		store = true
	} else {
		exists, err := e.cache.Contains(ctx, key)
		if err != nil {
			e.logger.Warn("tile cache probe failed", zap.String("tile", key), zap.Error(err))
		}
		store = exists
	}

	out, err := e.comp.Composite(ctx, addr, base, e.registry.Active(), params)
	if errors.Is(err, ErrDecodeBase) {
		e.logger.Warn("base tile undecodable, serving it as is", zap.String("tile", key), zap.Error(err))
		return base, nil
	}
	if err != nil {
		return nil, err
	}

	if store {
		e.storeIfCurrent(ctx, gen, key, out)
	}
	return out, nil
}

// storeIfCurrent writes out unless an invalidation happened since gen was
// read. An invalidation bumps the generation under writeMu before touching
// the cache, so it either sees this entry and removes it or makes the
// check fail.
func (e *Engine) storeIfCurrent(ctx context.Context, gen uint64, key string, out []byte) bool {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.generation.Load() != gen {
		return false
	}
	if err := e.cache.Set(ctx, key, out); err != nil {
		e.logger.Warn("tile cache write failed", zap.String("tile", key), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) bumpGeneration() {
	e.writeMu.Lock()
	e.generation.Add(1)
	e.writeMu.Unlock()
}

// AddLayer anchors img under key, replacing any layer with the same key.
func (e *Engine) AddLayer(ctx context.Context, key string, img image.Image, anchor overlay.Anchor) (*overlay.Layer, error) {
	layer, old, err := e.registry.Add(key, img, anchor)
	if err != nil {
		return nil, err
	}
	if old != nil {
		e.stats.RemoveLayer(key)
		e.invalidateTiles(ctx, old.Tiles())
	}
	e.invalidateTiles(ctx, layer.Tiles())
	e.logger.Info("overlay layer added",
		zap.String("layer", key),
		zap.Int("width", layer.Width),
		zap.Int("height", layer.Height),
		zap.Int("tiles", len(layer.Tiles())))
	return layer, nil
}

// RemoveLayer drops a layer and its statistics.
func (e *Engine) RemoveLayer(ctx context.Context, key string) error {
	layer, err := e.registry.Remove(key)
	if err != nil {
		return err
	}
	e.stats.RemoveLayer(key)
	e.invalidateTiles(ctx, layer.Tiles())
	e.logger.Info("overlay layer removed", zap.String("layer", key))
	return nil
}

// SetDrawEnabled toggles a layer and returns it in its new state.
func (e *Engine) SetDrawEnabled(ctx context.Context, key string, enabled bool) (*overlay.Layer, error) {
	layer, err := e.registry.SetDrawEnabled(key, enabled)
	if err != nil {
		return nil, err
	}
	e.invalidateTiles(ctx, layer.Tiles())
	return layer, nil
}

// ClearAllLayers removes every layer, all statistics and the tile cache.
func (e *Engine) ClearAllLayers(ctx context.Context) error {
	e.registry.Clear()
	e.stats.Reset()
	return e.clearCache(ctx)
}

// Layers lists the layers in z-order.
func (e *Engine) Layers() []*overlay.Layer {
	return e.registry.All()
}

// Layer returns one layer.
func (e *Engine) Layer(key string) (*overlay.Layer, bool) {
	return e.registry.Get(key)
}

// SetFilter changes the enabled colours. nil disables filtering. Statistics
// are reset because matched counts depend on the filter.
func (e *Engine) SetFilter(ctx context.Context, set *palette.Set) error {
	return e.update(ctx, func(p *Params) { p.Filter = set }, true)
}

// SetEnhancementMode changes the render mode.
func (e *Engine) SetEnhancementMode(ctx context.Context, mode enhance.Mode) error {
	if _, err := enhance.ParseMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
	}
	return e.update(ctx, func(p *Params) { p.Mode = mode }, false)
}

// SetComputeDevice switches between the GPU and CPU filter.
func (e *Engine) SetComputeDevice(ctx context.Context, device filter.Device) error {
	if _, err := filter.ParseDevice(string(device)); err != nil {
		return fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
	}
	return e.update(ctx, func(p *Params) { p.Device = device }, false)
}

// SetCachingEnabled toggles the tile cache. Existing entries are kept.
func (e *Engine) SetCachingEnabled(enabled bool) {
	e.mu.Lock()
	e.cachingEnabled = enabled
	p := e.params
	e.mu.Unlock()
	if e.onChange != nil {
		e.onChange(p, enabled)
	}
}

func (e *Engine) update(ctx context.Context, apply func(*Params), resetStats bool) error {
	e.mu.Lock()
	apply(&e.params)
	p, c := e.params, e.cachingEnabled
	e.mu.Unlock()

	if resetStats {
		e.stats.Reset()
	}
	if e.onChange != nil {
		e.onChange(p, c)
	}
	return e.clearCache(ctx)
}

func (e *Engine) clearCache(ctx context.Context) error {
	e.bumpGeneration()
	if err := e.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear tile cache: %w", err)
	}
	return nil
}

// InvalidateTile drops the cached render of one tile, e.g. after the live
// tile changed upstream.
func (e *Engine) InvalidateTile(ctx context.Context, addr overlay.TileAddress) error {
	e.bumpGeneration()
	return e.cache.Delete(ctx, addr.Key())
}

func (e *Engine) invalidateTiles(ctx context.Context, tiles []overlay.TileAddress) {
	for _, t := range tiles {
		if err := e.InvalidateTile(ctx, t); err != nil {
			e.logger.Warn("tile cache invalidation failed", zap.String("tile", t.Key()), zap.Error(err))
		}
	}
}

// AggregatedStats sums per-colour counts over layerKeys, or over every
// layer when none are given.
func (e *Engine) AggregatedStats(layerKeys ...string) map[string]stats.Counts {
	return e.stats.Aggregate(layerKeys...)
}

// PerTileStats returns the per-tile statistics of one layer.
func (e *Engine) PerTileStats(layerKey string) map[string]stats.ColorStats {
	return e.stats.PerTile(layerKey)
}

// RunBatchStats recomputes a layer's statistics against live tiles.
func (e *Engine) RunBatchStats(ctx context.Context, layerKey string) (stats.Report, error) {
	if e.batch == nil {
		return stats.Report{}, ErrBatchUnavailable
	}
	layer, ok := e.registry.Get(layerKey)
	if !ok {
		return stats.Report{}, fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, layerKey)
	}
	return e.batch.Run(ctx, layer, e.Params().Filter), nil
}

// Close releases device resources.
func (e *Engine) Close() {
	e.comp.Close()
	e.cache.Close()
}
