// Package stats counts, per palette colour, how many overlay pixels exist
// and how many are already painted correctly on the live map.
package stats

import (
	"image"
	"sort"
	"sync"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
)

// ColorStats holds per-colour counts keyed by palette.RGB.Key.
type ColorStats struct {
	Matched map[string]int `json:"matched"`
	Total   map[string]int `json:"total"`
}

// NewColorStats returns empty maps ready for counting.
func NewColorStats() ColorStats {
	return ColorStats{Matched: map[string]int{}, Total: map[string]int{}}
}

func (s ColorStats) clone() ColorStats {
	out := ColorStats{
		Matched: make(map[string]int, len(s.Matched)),
		Total:   make(map[string]int, len(s.Total)),
	}
	for k, v := range s.Matched {
		out.Matched[k] = v
	}
	for k, v := range s.Total {
		out.Total[k] = v
	}
	return out
}

// Counts is one aggregated colour entry.
type Counts struct {
	Matched int `json:"matched"`
	Total   int `json:"total"`
}

// Compute counts one slice. original is the unfiltered slice, filtered the
// filter output for it, and live the base tile with the slice placed at
// origin. A nil live counts nothing as matched.
//
// Every non-transparent original pixel adds to Total except
// palette.TransparencyMarker pixels: they mark intentionally empty spots
// and are never counted in Total or Matched.
func Compute(original, filtered, live *image.NRGBA, origin image.Point) ColorStats {
	out := NewColorStats()
	b := original.Bounds()
	fb := filtered.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c, ok := opaqueAt(original, b.Min.X+x, b.Min.Y+y)
			if !ok || c == palette.TransparencyMarker {
				continue
			}
			out.Total[c.Key()]++

			f, ok := opaqueAt(filtered, fb.Min.X+x, fb.Min.Y+y)
			if !ok {
				continue
			}
			if l, ok := opaqueAt(live, origin.X+x, origin.Y+y); ok && l == f {
				out.Matched[f.Key()]++
			}
		}
	}
	return out
}

// ComputeWithFilter is Compute with the filter applied inline. Marker
// pixels are skipped the same way.
func ComputeWithFilter(original, live *image.NRGBA, origin image.Point, allowed *palette.Set) ColorStats {
	out := NewColorStats()
	b := original.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c, ok := opaqueAt(original, b.Min.X+x, b.Min.Y+y)
			if !ok || c == palette.TransparencyMarker {
				continue
			}
			out.Total[c.Key()]++
			if !allowed.Contains(c) {
				continue
			}
			if l, ok := opaqueAt(live, origin.X+x, origin.Y+y); ok && l == c {
				out.Matched[c.Key()]++
			}
		}
	}
	return out
}

func opaqueAt(img *image.NRGBA, x, y int) (palette.RGB, bool) {
	if img == nil || !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return palette.RGB{}, false
	}
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+4 : i+4]
	if p[3] == 0 {
		return palette.RGB{}, false
	}
	return palette.RGB{R: p[0], G: p[1], B: p[2]}, true
}

// Store keeps ColorStats per layer and per tile. Writes for the same tile
// replace the previous entry; the last writer wins.
type Store struct {
	mu     sync.RWMutex
	layers map[string]map[string]ColorStats
	// current reports whether a layer is still registered. Checked under mu
	// so a Record racing RemoveLayer either lands before the removal or is
	// dropped.
	current func(*overlay.Layer) bool
}

func NewStore() *Store {
	return &Store{layers: make(map[string]map[string]ColorStats)}
}

// SetLayerCheck installs the registry check used by Record.
func (s *Store) SetLayerCheck(current func(*overlay.Layer) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
}

// Record stores the stats of one tile of layer unless the layer has been
// removed or replaced since the work started. It reports whether the entry
// was kept.
func (s *Store) Record(layer *overlay.Layer, tileKey string, st ColorStats) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !s.current(layer) {
		return false
	}
	s.put(layer.Key, tileKey, st)
	return true
}

// Put replaces the stats of one tile of one layer.
func (s *Store) Put(layerKey, tileKey string, st ColorStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(layerKey, tileKey, st)
}

func (s *Store) put(layerKey, tileKey string, st ColorStats) {
	tiles, ok := s.layers[layerKey]
	if !ok {
		tiles = make(map[string]ColorStats)
		s.layers[layerKey] = tiles
	}
	tiles[tileKey] = st.clone()
}

// PerTile returns a copy of every tile entry of a layer.
func (s *Store) PerTile(layerKey string) map[string]ColorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ColorStats, len(s.layers[layerKey]))
	for k, v := range s.layers[layerKey] {
		out[k] = v.clone()
	}
	return out
}

// Aggregate sums every tile of the given layers. With no keys it sums all
// layers.
func (s *Store) Aggregate(layerKeys ...string) map[string]Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(layerKeys) == 0 {
		for k := range s.layers {
			layerKeys = append(layerKeys, k)
		}
	}
	out := make(map[string]Counts)
	for _, lk := range layerKeys {
		for _, st := range s.layers[lk] {
			for k, v := range st.Total {
				c := out[k]
				c.Total += v
				out[k] = c
			}
			for k, v := range st.Matched {
				c := out[k]
				c.Matched += v
				out[k] = c
			}
		}
	}
	return out
}

// RemoveLayer drops every entry of a layer.
func (s *Store) RemoveLayer(layerKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, layerKey)
}

// RemoveTile drops one tile entry from every layer.
func (s *Store) RemoveTile(tileKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tiles := range s.layers {
		delete(tiles, tileKey)
	}
}

// Reset drops everything.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = make(map[string]map[string]ColorStats)
}

// Entry is one row of a sorted aggregate.
type Entry struct {
	Key string `json:"key"`
	Counts
}

// Sorted orders an aggregate by total descending, then key.
func Sorted(agg map[string]Counts) []Entry {
	out := make([]Entry, 0, len(agg))
	for k, v := range agg {
		out = append(out, Entry{Key: k, Counts: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// BucketByPalette folds non-catalog colours into palette.OtherKey.
func BucketByPalette(agg map[string]Counts) map[string]Counts {
	out := make(map[string]Counts, len(agg))
	for k, v := range agg {
		b := palette.Bucket(k)
		c := out[b]
		c.Matched += v.Matched
		c.Total += v.Total
		out[b] = c
	}
	return out
}
