// Package palette holds the wplace colour catalog and colour-set helpers
// shared by the filter, enhancement and statistics stages.
package palette

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RGB is an opaque colour triple. Matching is exact, per channel.
type RGB struct {
	R, G, B uint8
}

// Key returns the stable "r,g,b" encoding used by statistics maps.
func (c RGB) Key() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Packed returns the colour as 0x00BBGGRR, the same layout the GPU
// filter uses for the low 24 bits of a pixel.
func (c RGB) Packed() uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16
}

// ParseKey is the inverse of RGB.Key.
func ParseKey(key string) (RGB, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid colour key %q", key)
	}
	var out [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid colour key %q: %w", key, err)
		}
		out[i] = uint8(v)
	}
	return RGB{out[0], out[1], out[2]}, nil
}

// Color is one catalog entry.
type Color struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	RGB     RGB    `json:"rgb"`
	Premium bool   `json:"premium"`
}

// OtherKey buckets every colour that is not part of the catalog.
const OtherKey = "other"

// TransparencyMarker is the reserved placeholder colour (#DEFACE). Artwork
// uses it to mark pixels that are deliberately left unpainted.
var TransparencyMarker = RGB{222, 250, 206}

var catalog = []Color{
	{1, "Black", RGB{0, 0, 0}, false},
	{2, "Dark Gray", RGB{60, 60, 60}, false},
	{3, "Gray", RGB{120, 120, 120}, false},
	{4, "Light Gray", RGB{210, 210, 210}, false},
	{5, "White", RGB{255, 255, 255}, false},
	{6, "Deep Red", RGB{96, 0, 24}, false},
	{7, "Red", RGB{237, 28, 36}, false},
	{8, "Orange", RGB{255, 127, 39}, false},
	{9, "Gold", RGB{246, 170, 9}, false},
	{10, "Yellow", RGB{249, 221, 59}, false},
	{11, "Light Yellow", RGB{255, 250, 188}, false},
	{12, "Dark Green", RGB{14, 185, 104}, false},
	{13, "Green", RGB{19, 230, 123}, false},
	{14, "Light Green", RGB{135, 255, 94}, false},
	{15, "Dark Teal", RGB{12, 129, 110}, false},
	{16, "Teal", RGB{16, 174, 166}, false},
	{17, "Light Teal", RGB{19, 225, 190}, false},
	{18, "Dark Blue", RGB{40, 80, 158}, false},
	{19, "Blue", RGB{64, 147, 228}, false},
	{20, "Cyan", RGB{96, 247, 242}, false},
	{21, "Indigo", RGB{107, 80, 246}, false},
	{22, "Light Indigo", RGB{153, 177, 251}, false},
	{23, "Dark Purple", RGB{120, 12, 153}, false},
	{24, "Purple", RGB{170, 56, 185}, false},
	{25, "Light Purple", RGB{224, 159, 249}, false},
	{26, "Dark Pink", RGB{203, 0, 122}, false},
	{27, "Pink", RGB{236, 31, 128}, false},
	{28, "Light Pink", RGB{243, 141, 169}, false},
	{29, "Dark Brown", RGB{104, 70, 52}, false},
	{30, "Brown", RGB{149, 104, 42}, false},
	{31, "Beige", RGB{248, 178, 119}, false},
	{32, "Medium Gray", RGB{170, 170, 170}, true},
	{33, "Dark Red", RGB{165, 14, 30}, true},
	{34, "Light Red", RGB{250, 128, 114}, true},
	{35, "Dark Orange", RGB{228, 92, 26}, true},
	{36, "Light Tan", RGB{214, 181, 148}, true},
	{37, "Dark Goldenrod", RGB{156, 132, 49}, true},
	{38, "Goldenrod", RGB{197, 173, 49}, true},
	{39, "Light Goldenrod", RGB{232, 212, 95}, true},
	{40, "Dark Olive", RGB{74, 107, 58}, true},
	{41, "Olive", RGB{90, 148, 74}, true},
	{42, "Light Olive", RGB{132, 197, 115}, true},
	{43, "Dark Cyan", RGB{15, 121, 159}, true},
	{44, "Light Cyan", RGB{187, 250, 242}, true},
	{45, "Light Blue", RGB{125, 199, 255}, true},
	{46, "Dark Indigo", RGB{77, 49, 184}, true},
	{47, "Dark Slate Blue", RGB{74, 66, 132}, true},
	{48, "Slate Blue", RGB{122, 113, 196}, true},
	{49, "Light Slate Blue", RGB{181, 174, 241}, true},
	{50, "Light Brown", RGB{219, 164, 99}, true},
	{51, "Dark Beige", RGB{209, 128, 81}, true},
	{52, "Light Beige", RGB{255, 197, 165}, true},
	{53, "Dark Peach", RGB{155, 82, 73}, true},
	{54, "Peach", RGB{209, 128, 120}, true},
	{55, "Light Peach", RGB{250, 182, 164}, true},
	{56, "Dark Tan", RGB{123, 99, 82}, true},
	{57, "Tan", RGB{156, 132, 107}, true},
	{58, "Dark Slate", RGB{51, 57, 65}, true},
	{59, "Slate", RGB{109, 117, 141}, true},
	{60, "Light Slate", RGB{179, 185, 209}, true},
	{61, "Dark Stone", RGB{109, 100, 63}, true},
	{62, "Stone", RGB{148, 140, 107}, true},
	{63, "Light Stone", RGB{205, 197, 158}, true},
}

var (
	byID  = make(map[int]Color, len(catalog))
	byRGB = make(map[RGB]Color, len(catalog))
)

func init() {
	for _, c := range catalog {
		byID[c.ID] = c
		byRGB[c.RGB] = c
	}
}

// Catalog returns a copy of every colour, ordered by ID.
func Catalog() []Color {
	out := make([]Color, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a catalog colour.
func ByID(id int) (Color, bool) {
	c, ok := byID[id]
	return c, ok
}

// Lookup finds the catalog entry for an RGB triple.
func Lookup(c RGB) (Color, bool) {
	e, ok := byRGB[c]
	return e, ok
}

// Bucket maps a colour key onto itself when it is a catalog colour and
// onto OtherKey otherwise.
func Bucket(key string) string {
	c, err := ParseKey(key)
	if err != nil {
		return OtherKey
	}
	if _, ok := byRGB[c]; !ok {
		return OtherKey
	}
	return key
}

// Set is the enabled subset of colours handed to the filter stage.
// A nil *Set means "no filtering"; an empty Set lets nothing through.
type Set struct {
	colors map[RGB]struct{}
}

// NewSet builds a set from explicit colours.
func NewSet(colors ...RGB) *Set {
	s := &Set{colors: make(map[RGB]struct{}, len(colors))}
	for _, c := range colors {
		s.colors[c] = struct{}{}
	}
	return s
}

// SetFromIDs builds a set from catalog IDs. Unknown IDs are an error.
func SetFromIDs(ids []int) (*Set, error) {
	s := NewSet()
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown palette colour id %d", id)
		}
		s.colors[c.RGB] = struct{}{}
	}
	return s, nil
}

// Contains reports whether c is enabled. A nil set contains everything.
func (s *Set) Contains(c RGB) bool {
	if s == nil {
		return true
	}
	_, ok := s.colors[c]
	return ok
}

// Len is the number of enabled colours.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.colors)
}

// Colors returns the enabled colours in packed order.
func (s *Set) Colors() []RGB {
	if s == nil {
		return nil
	}
	out := make([]RGB, 0, len(s.colors))
	for c := range s.colors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Packed() < out[j].Packed() })
	return out
}

// IDs returns the catalog IDs of enabled colours, ignoring non-catalog ones.
func (s *Set) IDs() []int {
	if s == nil {
		return nil
	}
	ids := make([]int, 0, len(s.colors))
	for c := range s.colors {
		if e, ok := byRGB[c]; ok {
			ids = append(ids, e.ID)
		}
	}
	sort.Ints(ids)
	return ids
}
