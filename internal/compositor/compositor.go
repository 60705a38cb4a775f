// Package compositor renders one map tile: the base tile upscaled x3 with
// every active overlay slice for that tile filtered, counted, enhanced and
// drawn on top.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
	"wplace_overlay/internal/stats"
)

// ErrDecodeBase is returned when the base tile bytes cannot be decoded.
var ErrDecodeBase = errors.New("decode base tile")

// Params are the render parameters of one composite.
type Params struct {
	Filter *palette.Set
	Mode   enhance.Mode
	Device filter.Device
}

// Compositor owns one filter backend per device and writes inline stats.
type Compositor struct {
	mu       sync.Mutex
	backends map[filter.Device]filter.Backend
	newBack  func(filter.Device) filter.Backend
	stats    *stats.Store
	tileSize int
	logger   *zap.Logger
}

// New creates a compositor writing inline stats into store.
func New(store *stats.Store, logger *zap.Logger) *Compositor {
	return &Compositor{
		backends: make(map[filter.Device]filter.Backend),
		newBack:  func(d filter.Device) filter.Backend { return filter.New(d, logger) },
		stats:    store,
		tileSize: overlay.TileSize,
		logger:   logger,
	}
}

// WithBackend pins the backend used for device.
func (c *Compositor) WithBackend(device filter.Device, b filter.Backend) *Compositor {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[device] = b
	return c
}

func (c *Compositor) backend(device filter.Device) filter.Backend {
	if device == "" {
		device = filter.DeviceCPU
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.backends[device]
	if !ok {
		b = c.newBack(device)
		c.backends[device] = b
	}
	return b
}

// Close releases backend resources.
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d, b := range c.backends {
		filter.Close(b)
		delete(c.backends, d)
	}
}

// Composite renders addr. layers must already be ordered by z-order; layers
// with DrawEnabled false are skipped.
func (c *Compositor) Composite(ctx context.Context, addr overlay.TileAddress, base []byte, layers []*overlay.Layer, params Params) ([]byte, error) {
	baseImg, err := c.decodeBase(base)
	if err != nil {
		return nil, err
	}

	bb := baseImg.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, bb.Dx()*enhance.Scale, bb.Dy()*enhance.Scale))
	xdraw.NearestNeighbor.Scale(canvas, canvas.Bounds(), baseImg, bb, xdraw.Src, nil)

	backend := c.backend(params.Device)
	for _, layer := range layers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !layer.DrawEnabled {
			continue
		}
		slices := layer.SlicesFor(addr)
		if len(slices) == 0 {
			continue
		}

		tileStats := stats.NewColorStats()
		for _, s := range slices {
			filtered, err := backend.Apply(s.Image, params.Filter)
			if err != nil {
				c.logger.Warn("filter failed, skipping slice",
					zap.String("layer", layer.Key), zap.String("slice", s.Key.String()), zap.Error(err))
				continue
			}
			origin := s.Key.Offset.Point()
			stats.Merge(&tileStats, stats.Compute(s.Image, filtered, baseImg, origin))

			up := enhance.Render(filtered, baseImg, origin, params.Mode)
			at := origin.Mul(enhance.Scale)
			draw.Draw(canvas, up.Bounds().Add(at), up, image.Point{}, draw.Over)
		}
		c.stats.Record(layer, addr.Key(), tileStats)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeBase decodes the base tile. The upstream serves a 1x1 image for
// never-painted tiles; that becomes a fully transparent tile.
func (c *Compositor) decodeBase(base []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeBase, err)
	}
	if b := img.Bounds(); b.Dx() == 1 && b.Dy() == 1 {
		return image.NewNRGBA(image.Rect(0, 0, c.tileSize, c.tileSize)), nil
	}
	return overlay.ToNRGBA(img), nil
}
