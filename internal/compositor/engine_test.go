package compositor

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/tilecache"
)

type engineFixture struct {
	engine  *Engine
	cache   *tilecache.Cache
	stats   *stats.Store
	changes []Params
}

func newEngineFixture(t *testing.T, caching bool) *engineFixture {
	t.Helper()
	cache, err := tilecache.New(tilecache.NewMemoryStore(), 10, 1<<20, zap.NewNop())
	require.NoError(t, err)

	f := &engineFixture{cache: cache, stats: stats.NewStore()}
	comp := New(f.stats, zap.NewNop()).WithBackend(filter.DeviceCPU, filter.NewCPU())
	f.engine = NewEngine(Deps{
		Registry:       overlay.NewRegistry(),
		Compositor:     comp,
		Cache:          cache,
		Stats:          f.stats,
		Logger:         zap.NewNop(),
		OnParamsChange: func(p Params, _ bool) { f.changes = append(f.changes, p) },
	}, Params{Device: filter.DeviceCPU}, caching)
	t.Cleanup(f.engine.Close)
	return f
}

func (f *engineFixture) cached(t *testing.T, key string) ([]byte, bool) {
	t.Helper()
	has, err := f.cache.Contains(context.Background(), key)
	require.NoError(t, err)
	if !has {
		return nil, false
	}
	data, ok, err := f.cache.Get(context.Background(), key)
	require.NoError(t, err)
	return data, ok
}

func TestEngine_CachingPolicy(t *testing.T) {
	ctx := context.Background()
	tile := overlay.TileAddress{X: 1, Y: 2}
	stale := []byte("stale")

	t.Run("off without entry computes and stores nothing", func(t *testing.T) {
		f := newEngineFixture(t, false)
		out, err := f.engine.RenderTile(ctx, tile, whiteBase(t))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 12, 12), decodePNG(t, out).Bounds())
		_, ok := f.cached(t, tile.Key())
		assert.False(t, ok)
	})

	t.Run("off with entry computes and refreshes it", func(t *testing.T) {
		f := newEngineFixture(t, false)
		require.NoError(t, f.cache.Set(ctx, tile.Key(), stale))
		out, err := f.engine.RenderTile(ctx, tile, whiteBase(t))
		require.NoError(t, err)
		assert.NotEqual(t, stale, out)
		data, ok := f.cached(t, tile.Key())
		require.True(t, ok)
		assert.Equal(t, out, data)
	})

	t.Run("on without entry computes and caches", func(t *testing.T) {
		f := newEngineFixture(t, true)
		out, err := f.engine.RenderTile(ctx, tile, whiteBase(t))
		require.NoError(t, err)
		data, ok := f.cached(t, tile.Key())
		require.True(t, ok)
		assert.Equal(t, out, data)
	})

	t.Run("on with entry serves the cache", func(t *testing.T) {
		f := newEngineFixture(t, true)
		require.NoError(t, f.cache.Set(ctx, tile.Key(), stale))
		out, err := f.engine.RenderTile(ctx, tile, whiteBase(t))
		require.NoError(t, err)
		assert.Equal(t, stale, out)
	})
}

func TestEngine_UndecodableBaseReturnedUnchanged(t *testing.T) {
	f := newEngineFixture(t, true)
	base := []byte("not an image")
	out, err := f.engine.RenderTile(context.Background(), overlay.TileAddress{}, base)
	require.NoError(t, err)
	assert.Equal(t, base, out)
	_, ok := f.cached(t, "0,0")
	assert.False(t, ok)
}

func TestEngine_ParameterChangesClearCache(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)

	steps := []func() error{
		func() error { return f.engine.SetEnhancementMode(ctx, enhance.ModeFill) },
		func() error { return f.engine.SetComputeDevice(ctx, filter.DeviceGPU) },
		func() error { return f.engine.SetFilter(ctx, palette.NewSet(palette.RGB{})) },
	}
	for _, step := range steps {
		require.NoError(t, f.cache.Set(ctx, "5,5", []byte("x")))
		require.NoError(t, step())
		n, err := f.cache.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	require.Len(t, f.changes, 3)
	p := f.engine.Params()
	assert.Equal(t, enhance.ModeFill, p.Mode)
	assert.Equal(t, filter.DeviceGPU, p.Device)
	assert.Equal(t, 1, p.Filter.Len())
}

func TestEngine_InvalidParameters(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	assert.ErrorIs(t, f.engine.SetEnhancementMode(ctx, "sparkle"), overlay.ErrInvalidInput)
	assert.ErrorIs(t, f.engine.SetComputeDevice(ctx, "tpu"), overlay.ErrInvalidInput)
	assert.Empty(t, f.changes)
}

func TestEngine_SetFilterResetsStats(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	_, err := f.engine.AddLayer(ctx, "art", dotArt(red), overlay.Anchor{})
	require.NoError(t, err)
	_, err = f.engine.RenderTile(ctx, overlay.TileAddress{}, whiteBase(t))
	require.NoError(t, err)
	require.NotEmpty(t, f.engine.AggregatedStats())

	require.NoError(t, f.engine.SetFilter(ctx, nil))
	assert.Empty(t, f.engine.AggregatedStats())
}

func TestEngine_LayerChangesInvalidateTiles(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	require.NoError(t, f.cache.Set(ctx, "0,0", []byte("old")))
	require.NoError(t, f.cache.Set(ctx, "7,7", []byte("untouched")))

	_, err := f.engine.AddLayer(ctx, "art", dotArt(red), overlay.Anchor{})
	require.NoError(t, err)
	_, ok := f.cached(t, "0,0")
	assert.False(t, ok)
	_, ok = f.cached(t, "7,7")
	assert.True(t, ok)

	require.NoError(t, f.cache.Set(ctx, "0,0", []byte("again")))
	hidden, err := f.engine.SetDrawEnabled(ctx, "art", false)
	require.NoError(t, err)
	assert.False(t, hidden.DrawEnabled)
	_, ok = f.cached(t, "0,0")
	assert.False(t, ok)

	require.NoError(t, f.cache.Set(ctx, "0,0", []byte("again")))
	require.NoError(t, f.engine.RemoveLayer(ctx, "art"))
	_, ok = f.cached(t, "0,0")
	assert.False(t, ok)
	assert.Empty(t, f.engine.Layers())

	assert.ErrorIs(t, f.engine.RemoveLayer(ctx, "art"), overlay.ErrLayerNotFound)
}

func TestEngine_ClearAllLayers(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	_, err := f.engine.AddLayer(ctx, "a", dotArt(red), overlay.Anchor{})
	require.NoError(t, err)
	_, err = f.engine.RenderTile(ctx, overlay.TileAddress{}, whiteBase(t))
	require.NoError(t, err)

	require.NoError(t, f.engine.ClearAllLayers(ctx))
	assert.Empty(t, f.engine.Layers())
	assert.Empty(t, f.engine.AggregatedStats())
	n, err := f.cache.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_RunBatchStats(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false)
	_, err := f.engine.RunBatchStats(ctx, "a")
	assert.ErrorIs(t, err, ErrBatchUnavailable)

	f.engine.batch = stats.NewBatchRunner(nil, f.stats, stats.DefaultBatchConfig(), zap.NewNop())
	_, err = f.engine.RunBatchStats(ctx, "missing")
	assert.ErrorIs(t, err, overlay.ErrLayerNotFound)
}

func TestEngine_SetCachingEnabledKeepsEntries(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)
	require.NoError(t, f.cache.Set(ctx, "1,1", []byte("x")))
	f.engine.SetCachingEnabled(false)
	assert.False(t, f.engine.CachingEnabled())
	_, ok := f.cached(t, "1,1")
	assert.True(t, ok)
	require.Len(t, f.changes, 1)
}

// gateBackend blocks Apply until release is closed.
type gateBackend struct {
	entered chan struct{}
	release chan struct{}
}

func newGateBackend() *gateBackend {
	return &gateBackend{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gateBackend) Name() string { return "gate" }

func (g *gateBackend) Apply(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return filter.NewCPU().Apply(src, allowed)
}

// renderBlocked starts a render that stops inside the filter, runs during,
// then lets the render finish.
func renderBlocked(t *testing.T, f *engineFixture, during func()) {
	t.Helper()
	gate := newGateBackend()
	f.engine.comp.WithBackend(filter.DeviceCPU, gate)

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.RenderTile(context.Background(), overlay.TileAddress{}, whiteBase(t))
		done <- err
	}()
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("render never reached the filter")
	}
	during()
	close(gate.release)
	require.NoError(t, <-done)
}

func TestEngine_InFlightRenderDoesNotReviveRemovedLayer(t *testing.T) {
	ctx := context.Background()

	t.Run("removed", func(t *testing.T) {
		f := newEngineFixture(t, false)
		_, err := f.engine.AddLayer(ctx, "gone", dotArt(red), overlay.Anchor{})
		require.NoError(t, err)

		renderBlocked(t, f, func() {
			require.NoError(t, f.engine.RemoveLayer(ctx, "gone"))
		})
		assert.Empty(t, f.engine.AggregatedStats())
		assert.Empty(t, f.engine.PerTileStats("gone"))
	})

	t.Run("cleared", func(t *testing.T) {
		f := newEngineFixture(t, false)
		_, err := f.engine.AddLayer(ctx, "gone", dotArt(red), overlay.Anchor{})
		require.NoError(t, err)

		renderBlocked(t, f, func() {
			require.NoError(t, f.engine.ClearAllLayers(ctx))
		})
		assert.Empty(t, f.engine.AggregatedStats())
	})

	t.Run("replaced", func(t *testing.T) {
		f := newEngineFixture(t, false)
		_, err := f.engine.AddLayer(ctx, "art", dotArt(red), overlay.Anchor{})
		require.NoError(t, err)

		renderBlocked(t, f, func() {
			_, err := f.engine.AddLayer(ctx, "art", dotArt(black), overlay.Anchor{})
			require.NoError(t, err)
		})
		assert.Empty(t, f.engine.PerTileStats("art"), "stats of the replaced artwork are dropped")
	})

	t.Run("toggled layer still records", func(t *testing.T) {
		f := newEngineFixture(t, false)
		_, err := f.engine.AddLayer(ctx, "art", dotArt(red), overlay.Anchor{})
		require.NoError(t, err)

		renderBlocked(t, f, func() {
			_, err := f.engine.SetDrawEnabled(ctx, "art", true)
			require.NoError(t, err)
		})
		assert.Equal(t, stats.Counts{Total: 1}, f.engine.AggregatedStats()["237,28,36"])
	})
}

func TestEngine_InvalidationDuringRenderKeepsCacheClean(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true)

	renderBlocked(t, f, func() {
		require.NoError(t, f.engine.SetEnhancementMode(ctx, enhance.ModeCross))
	})
	_, ok := f.cached(t, "0,0")
	assert.False(t, ok, "render started under old params is not cached")

	gen := f.engine.generation.Load()
	require.NoError(t, f.engine.InvalidateTile(ctx, overlay.TileAddress{X: 3, Y: 3}))
	assert.False(t, f.engine.storeIfCurrent(ctx, gen, "0,0", []byte("stale")))
	_, ok = f.cached(t, "0,0")
	assert.False(t, ok)

	assert.True(t, f.engine.storeIfCurrent(ctx, f.engine.generation.Load(), "0,0", []byte("fresh")))
	data, ok := f.cached(t, "0,0")
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), data)
}
