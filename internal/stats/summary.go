package stats

import (
	"math"

	"wplace_overlay/internal/palette"
)

// ColorSummary is one named colour line of a Summary.
type ColorSummary struct {
	Key     string  `json:"key"`
	Name    string  `json:"name,omitempty"`
	ID      int     `json:"id,omitempty"`
	Matched int     `json:"matched"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Summary is an aggregate ready for display.
type Summary struct {
	Matched int            `json:"matched"`
	Total   int            `json:"total"`
	Percent float64        `json:"percent"`
	Colors  []ColorSummary `json:"colors"`
}

// Remaining is the number of pixels still to paint.
func (s Summary) Remaining() int { return s.Total - s.Matched }

// Percent is matched/total in percent, rounded to two decimals.
func Percent(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(total)*10000) / 100
}

// Summarize sorts agg by total and names catalog colours. With bucket set,
// off-palette colours are folded into palette.OtherKey first.
func Summarize(agg map[string]Counts, bucket bool) Summary {
	if bucket {
		agg = BucketByPalette(agg)
	}
	out := Summary{Colors: []ColorSummary{}}
	for _, e := range Sorted(agg) {
		row := ColorSummary{Key: e.Key, Matched: e.Matched, Total: e.Total, Percent: Percent(e.Matched, e.Total)}
		if rgb, err := palette.ParseKey(e.Key); err == nil {
			if col, ok := palette.Lookup(rgb); ok {
				row.Name, row.ID = col.Name, col.ID
			}
		}
		out.Matched += e.Matched
		out.Total += e.Total
		out.Colors = append(out.Colors, row)
	}
	out.Percent = Percent(out.Matched, out.Total)
	return out
}

// TileProgress is the completion of one tile of a layer.
type TileProgress struct {
	Tile    string
	Matched int
	Total   int
}

// PerTileProgress collapses per-tile colour stats into totals.
func PerTileProgress(perTile map[string]ColorStats) []TileProgress {
	out := make([]TileProgress, 0, len(perTile))
	for tile, cs := range perTile {
		p := TileProgress{Tile: tile}
		for _, n := range cs.Total {
			p.Total += n
		}
		for _, n := range cs.Matched {
			p.Matched += n
		}
		out = append(out, p)
	}
	return out
}
