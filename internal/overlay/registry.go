package overlay

import (
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
)

// Layer is one anchored artwork with its precomputed slices.
type Layer struct {
	Key         string
	Anchor      Anchor
	Width       int
	Height      int
	Slices      map[SliceKey]*image.NRGBA
	DrawEnabled bool
	ZOrder      int
}

// SlicesFor returns the slices of the layer that fall on addr, ordered by key.
func (l *Layer) SlicesFor(addr TileAddress) []Slice {
	var out []Slice
	for k, img := range l.Slices {
		if k.Tile == addr {
			out = append(out, Slice{Key: k, Image: img})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Tiles lists every tile the layer touches.
func (l *Layer) Tiles() []TileAddress {
	seen := make(map[TileAddress]struct{}, len(l.Slices))
	out := make([]TileAddress, 0, len(l.Slices))
	for k := range l.Slices {
		if _, ok := seen[k.Tile]; ok {
			continue
		}
		seen[k.Tile] = struct{}{}
		out = append(out, k.Tile)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Registry keeps the active layers. Adding a layer under an existing key
// replaces it; z-order follows insertion. Published *Layer values are never
// mutated, so callers may read them without holding the registry lock.
type Registry struct {
	mu     sync.RWMutex
	layers map[string]*Layer
	nextZ  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{layers: make(map[string]*Layer)}
}

// Add splits img at anchor and stores it under key. It returns the new
// layer and the replaced one, if any.
func (r *Registry) Add(key string, img image.Image, anchor Anchor) (*Layer, *Layer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil, fmt.Errorf("%w: empty layer key", ErrInvalidInput)
	}
	slices, err := Split(img, anchor, TileSize)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.layers[key]
	r.nextZ++
	layer := &Layer{
		Key:         key,
		Anchor:      anchor,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		Slices:      slices,
		DrawEnabled: true,
		ZOrder:      r.nextZ,
	}
	r.layers[key] = layer
	return layer, old, nil
}

// Remove drops a layer and returns it.
func (r *Registry) Remove(key string) (*Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, key)
	}
	delete(r.layers, key)
	return l, nil
}

// SetDrawEnabled toggles whether a layer is composited.
func (r *Registry) SetDrawEnabled(key string, enabled bool) (*Layer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, key)
	}
	next := *l
	next.DrawEnabled = enabled
	r.layers[key] = &next
	return &next, nil
}

// Get returns one layer.
func (r *Registry) Get(key string) (*Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layers[key]
	return l, ok
}

// Current reports whether l is still the registered layer under its key.
// ZOrder is unique per Add and survives draw toggles, so a replaced or
// removed layer is never current.
func (r *Registry) Current(l *Layer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.layers[l.Key]
	return ok && cur.ZOrder == l.ZOrder
}

// Clear removes every layer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = make(map[string]*Layer)
}

// All returns every layer ordered by z-order.
func (r *Registry) All() []*Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Layer, 0, len(r.layers))
	for _, l := range r.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZOrder < out[j].ZOrder })
	return out
}

// Active returns the draw-enabled layers ordered by z-order.
func (r *Registry) Active() []*Layer {
	all := r.All()
	out := all[:0]
	for _, l := range all {
		if l.DrawEnabled {
			out = append(out, l)
		}
	}
	return out
}
