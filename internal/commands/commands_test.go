package commands

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/tilecache"
)

var red = color.NRGBA{237, 28, 36, 255}

type fakeTiles struct {
	data []byte
	err  error
}

func (f *fakeTiles) FetchTile(context.Context, int, int) ([]byte, error) {
	return f.data, f.err
}

func whitePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestEngine(t *testing.T, source stats.TileSource) *compositor.Engine {
	t.Helper()
	cache, err := tilecache.New(tilecache.NewMemoryStore(), 10, 1<<20, zap.NewNop())
	require.NoError(t, err)
	store := stats.NewStore()
	deps := compositor.Deps{
		Registry:   overlay.NewRegistry(),
		Compositor: compositor.New(store, zap.NewNop()).WithBackend(filter.DeviceCPU, filter.NewCPU()),
		Cache:      cache,
		Stats:      store,
		Logger:     zap.NewNop(),
	}
	if source != nil {
		cfg := stats.DefaultBatchConfig()
		cfg.ChunkPause = 0
		deps.Batch = stats.NewBatchRunner(source, store, cfg, zap.NewNop())
	}
	e := compositor.NewEngine(deps, compositor.Params{Device: filter.DeviceCPU}, false)
	t.Cleanup(e.Close)
	return e
}

func addDot(t *testing.T, e *compositor.Engine, key string) {
	t.Helper()
	art := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	art.SetNRGBA(0, 0, red)
	_, err := e.AddLayer(context.Background(), key, art, overlay.Anchor{Pixel: overlay.LocalPixel{X: 1, Y: 1}})
	require.NoError(t, err)
}

type stubCommand struct{ name string }

func (c stubCommand) Name() string        { return c.name }
func (c stubCommand) Description() string { return c.name + " desc" }
func (c stubCommand) ExecuteText(*discordgo.Session, *discordgo.MessageCreate, []string) error {
	return nil
}
func (c stubCommand) ExecuteSlash(*discordgo.Session, *discordgo.InteractionCreate) error {
	return nil
}
func (c stubCommand) SlashDefinition() *discordgo.ApplicationCommand {
	if c.name == "textonly" {
		return nil
	}
	return &discordgo.ApplicationCommand{Name: c.name, Description: c.Description()}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubCommand{"zeta"})
	r.Register(stubCommand{"alpha"}, "a", "ALP")
	r.Register(stubCommand{"textonly"})

	cmd, ok := r.Get("Alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", cmd.Name())
	cmd, ok = r.Get("alp")
	require.True(t, ok)
	assert.Equal(t, "alpha", cmd.Name())
	_, ok = r.Get("missing")
	assert.False(t, ok)

	var names []string
	for _, c := range r.All() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"alpha", "textonly", "zeta"}, names)

	defs := r.GetSlashDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)
}

func TestHelpEmbed(t *testing.T) {
	r := NewRegistry()
	help := NewHelpCommand(r, "!")
	r.Register(help)
	r.Register(&PingCommand{})

	embed := help.buildHelpEmbed()
	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[0].Name, "help")
	assert.Contains(t, embed.Fields[1].Name, "ping")
	assert.Contains(t, embed.Footer.Text, "!")
}

func TestParseConvertArgs(t *testing.T) {
	q, err := parseConvertArgs([]string{"1818-806-989-358"})
	require.NoError(t, err)
	require.NotNil(t, q.pixel)
	assert.Equal(t, 1818, q.pixel.TileX)
	assert.Equal(t, 358, q.pixel.PixelY)

	q, err = parseConvertArgs([]string{"139.7794", "35.6833"})
	require.NoError(t, err)
	assert.Nil(t, q.pixel)
	assert.InDelta(t, 139.7794, q.lng, 1e-9)
	assert.InDelta(t, 35.6833, q.lat, 1e-9)

	q, err = parseConvertArgs([]string{"-122.4194", "37.7749"})
	require.NoError(t, err)
	assert.InDelta(t, -122.4194, q.lng, 1e-9)

	q, err = parseConvertArgs([]string{"https://wplace.live/?lat=35.68&lng=139.75&zoom=14"})
	require.NoError(t, err)
	assert.InDelta(t, 139.75, q.lng, 1e-9)
	assert.InDelta(t, 35.68, q.lat, 1e-9)

	for _, bad := range [][]string{
		nil,
		{"hello"},
		{"1818-806-1000-0"},
		{"https://wplace.live/?zoom=3"},
		{"180", "0"},
	} {
		_, err := parseConvertArgs(bad)
		assert.ErrorIs(t, err, errConvertUsage, "%v", bad)
	}
}

func TestParseTileArgs(t *testing.T) {
	cases := map[string]struct {
		args []string
		want overlay.TileAddress
	}{
		"pair":       {[]string{"12", "34"}, overlay.TileAddress{X: 12, Y: 34}},
		"hyphen":     {[]string{"12-34"}, overlay.TileAddress{X: 12, Y: 34}},
		"full coord": {[]string{"12-34-5-6"}, overlay.TileAddress{X: 12, Y: 34}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := parseTileArgs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range [][]string{nil, {"x", "1"}, {"2048", "0"}, {"-1", "0"}, {"1-2-3"}} {
		_, err := parseTileArgs(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestProgressCommand_Build(t *testing.T) {
	e := newTestEngine(t, nil)
	addDot(t, e, "art")
	_, err := e.RenderTile(context.Background(), overlay.TileAddress{}, whitePNG(t))
	require.NoError(t, err)
	cmd := NewProgressCommand(e)

	embed, file, err := cmd.build("", false)
	require.NoError(t, err)
	assert.Nil(t, file)
	assert.Contains(t, embed.Description, "0.00%")

	embed, file, err = cmd.build("art", false)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, progressMapFile, file.Name)
	assert.Equal(t, "attachment://"+progressMapFile, embed.Image.URL)
	img, err := png.Decode(file.Reader)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())

	var worst bool
	for _, f := range embed.Fields {
		if bytes.Contains([]byte(f.Value), []byte("`0,0`")) {
			worst = true
		}
	}
	assert.True(t, worst, "unfinished tile listed")

	_, _, err = cmd.build("missing", false)
	assert.ErrorIs(t, err, overlay.ErrLayerNotFound)
}

func TestOverlayTileCommand_Render(t *testing.T) {
	e := newTestEngine(t, nil)
	addDot(t, e, "art")

	cmd := NewOverlayTileCommand(e, &fakeTiles{data: whitePNG(t)})
	file, err := cmd.render(overlay.TileAddress{})
	require.NoError(t, err)
	assert.Equal(t, "tile_0_0.png", file.Name)
	img, err := png.Decode(file.Reader)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 12), img.Bounds())

	cmd = NewOverlayTileCommand(e, &fakeTiles{err: errors.New("upstream down")})
	_, err = cmd.render(overlay.TileAddress{})
	assert.ErrorContains(t, err, "upstream down")
}

func TestLayersCommand_Run(t *testing.T) {
	e := newTestEngine(t, nil)
	addDot(t, e, "art")
	cmd := NewLayersCommand(e)

	embed, _, err := cmd.run("", "")
	require.NoError(t, err)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "art", embed.Fields[0].Name)

	_, msg, err := cmd.run("hide", "art")
	require.NoError(t, err)
	assert.Contains(t, msg, "非表示")
	l, ok := e.Layer("art")
	require.True(t, ok)
	assert.False(t, l.DrawEnabled)

	_, _, err = cmd.run("show", "nope")
	assert.ErrorIs(t, err, overlay.ErrLayerNotFound)
	assert.Equal(t, "❌ レイヤーが見つかりません", layerErrorMessage(err))

	_, _, err = cmd.run("remove", "")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)
	_, _, err = cmd.run("explode", "art")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)

	_, _, err = cmd.run("remove", "art")
	require.NoError(t, err)
	assert.Empty(t, e.Layers())
}

func TestModeCommand_Apply(t *testing.T) {
	e := newTestEngine(t, nil)
	cmd := NewModeCommand(e)

	embed, err := cmd.apply("")
	require.NoError(t, err)
	assert.Equal(t, "`dot`", embed.Fields[0].Value)

	_, err = cmd.apply("Red-Cross")
	require.NoError(t, err)
	assert.Equal(t, enhance.ModeRedCross, e.Params().Mode)

	_, err = cmd.apply("sparkle")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)

	def := cmd.SlashDefinition()
	assert.Len(t, def.Options[0].Choices, len(enhance.Modes()))
}

func TestBatchCommand_Run(t *testing.T) {
	e := newTestEngine(t, &fakeTiles{data: whitePNG(t)})
	addDot(t, e, "art")
	cmd := NewBatchCommand(e)

	embed, err := cmd.run("art")
	require.NoError(t, err)
	assert.Contains(t, embed.Footer.Text, "タイル 1 枚中 1 枚成功")
	assert.Equal(t, stats.Counts{Total: 1}, e.AggregatedStats("art")["237,28,36"])

	_, err = cmd.run("")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)
	_, err = cmd.run("missing")
	assert.Equal(t, "❌ レイヤーが見つかりません", batchErrorMessage(err))

	noBatch := NewBatchCommand(newTestEngine(t, nil))
	_, err = noBatch.run("art")
	assert.ErrorIs(t, err, compositor.ErrBatchUnavailable)
}

func TestAddLayerCommand(t *testing.T) {
	art := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	art.SetNRGBA(0, 0, red)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, art))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/art.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		io.Copy(w, bytes.NewReader(buf.Bytes()))
	}))
	defer srv.Close()

	e := newTestEngine(t, nil)
	cmd := NewAddLayerCommand(e)

	msg, err := cmd.add(&discordgo.MessageAttachment{Filename: "my art.png", URL: srv.URL + "/art.png", Size: buf.Len()},
		"10-20-998-999", "")
	require.NoError(t, err)
	assert.Contains(t, msg, "`my art`")
	l, ok := e.Layer("my art")
	require.True(t, ok)
	assert.Equal(t, 3, l.Width)
	assert.Len(t, l.Tiles(), 4)

	_, err = cmd.add(nil, "10-20-0-0", "x")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)
	_, err = cmd.add(&discordgo.MessageAttachment{URL: srv.URL + "/art.png"}, "nope", "x")
	assert.ErrorIs(t, err, overlay.ErrInvalidInput)
	_, err = cmd.add(&discordgo.MessageAttachment{URL: srv.URL + "/missing.png"}, "1-1-0-0", "x")
	assert.ErrorContains(t, err, "status 404")
}

func TestLayerKeyFromFilename(t *testing.T) {
	assert.Equal(t, "castle", layerKeyFromFilename("castle.png"))
	assert.Equal(t, "a.b", layerKeyFromFilename("a.b.webp"))
	assert.Equal(t, "noext", layerKeyFromFilename("noext"))
}
