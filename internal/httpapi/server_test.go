package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
	"wplace_overlay/internal/tilecache"
	"wplace_overlay/internal/version"
)

type fakeTiles struct{ data []byte }

func (f fakeTiles) FetchTile(context.Context, int, int) ([]byte, error) { return f.data, nil }

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cache, err := tilecache.New(tilecache.NewMemoryStore(), 10, 1<<20, zap.NewNop())
	require.NoError(t, err)
	st := stats.NewStore()
	engine := compositor.NewEngine(compositor.Deps{
		Registry:   overlay.NewRegistry(),
		Compositor: compositor.New(st, zap.NewNop()).WithBackend(filter.DeviceCPU, filter.NewCPU()),
		Cache:      cache,
		Stats:      st,
		Logger:     zap.NewNop(),
	}, compositor.Params{Device: filter.DeviceCPU}, true)
	t.Cleanup(engine.Close)

	s := NewServer(Options{
		Engine: engine,
		Tiles:  fakeTiles{data: pngBytes(t, 4, 4, color.NRGBA{255, 255, 255, 255})},
		Logger: zap.NewNop(),
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "art.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/layers", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error.Code
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"version":"`+version.Version+`"`)
}

func TestLayers_UploadListRemove(t *testing.T) {
	s := newTestServer(t)
	red := color.NRGBA{237, 28, 36, 255}

	resp, body := do(t, s, uploadRequest(t, map[string]string{"key": "art", "coords": "0-0-1-1"}, pngBytes(t, 2, 2, red)))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var view LayerView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "art", view.Key)
	assert.Equal(t, "0-0-1-1", view.Coords)
	assert.Equal(t, []overlay.TileAddress{{X: 0, Y: 0}}, view.Tiles)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/layers", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"total":1`)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/layers/art/image", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, red, color.NRGBAModel.Convert(img.At(1, 1)))

	resp, body = do(t, s, jsonRequest(http.MethodPut, "/layers/art/draw", `{"enabled":false}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"draw_enabled":false`)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/layers/art", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, s, httptest.NewRequest(http.MethodDelete, "/layers/art", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "LAYER_NOT_FOUND", errorCode(t, body))

	resp, body = do(t, s, jsonRequest(http.MethodPut, "/layers/art/draw", `{"enabled":true}`))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "LAYER_NOT_FOUND", errorCode(t, body))
}

func TestLayers_UploadWithLatLngAndGeneratedKey(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, uploadRequest(t, map[string]string{"lat": "35.0", "lng": "139.0"},
		pngBytes(t, 1, 1, color.NRGBA{0, 0, 0, 255})))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var view LayerView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Len(t, view.Key, 36)
}

func TestLayers_UploadRejected(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		fields map[string]string
		image  []byte
	}{
		{"no anchor", map[string]string{"key": "a"}, pngBytes(t, 1, 1, color.NRGBA{A: 255})},
		{"bad coords", map[string]string{"coords": "1-2-3"}, pngBytes(t, 1, 1, color.NRGBA{A: 255})},
		{"no image", map[string]string{"coords": "0-0-0-0"}, nil},
		{"not an image", map[string]string{"coords": "0-0-0-0"}, []byte("hello")},
		{"lat without lng", map[string]string{"lat": "10"}, pngBytes(t, 1, 1, color.NRGBA{A: 255})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, s, uploadRequest(t, tt.fields, tt.image))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
		})
	}
}

func TestTiles_RenderAndStats(t *testing.T) {
	s := newTestServer(t)
	red := color.NRGBA{237, 28, 36, 255}
	resp, _ := do(t, s, uploadRequest(t, map[string]string{"key": "art", "coords": "0-0-0-0"}, pngBytes(t, 2, 2, red)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/tiles/0/0", bytes.NewReader(pngBytes(t, 4, 4, color.NRGBA{255, 255, 255, 255})))
	resp, body := do(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 12), img.Bounds())

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/stats?layers=art", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StatsResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 0, st.Matched)
	require.Len(t, st.Colors, 1)
	assert.Equal(t, "Red", st.Colors[0].Name)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/stats/art/tiles", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"0,0"`)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/stats?layers=nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTiles_FetchUpstreamAndValidate(t *testing.T) {
	s := newTestServer(t)
	resp, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/tiles/10/20", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/tiles/10/99999", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodPost, "/tiles/1/1", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/tiles/1/1/cache", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestParams(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, jsonRequest(http.MethodPut, "/params/mode", `{"mode":"fill"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p ParamsView
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "fill", string(p.Mode))

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/params/mode", `{"mode":"sparkle"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, s, jsonRequest(http.MethodPut, "/params/filter", `{"enabled":true,"ids":[7,1]}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	assert.True(t, p.FilterEnabled)
	assert.Equal(t, []int{1, 7}, p.FilterIDs)

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/params/filter", `{"enabled":true,"ids":[99]}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/params/device", `{"device":"tpu"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, s, jsonRequest(http.MethodPut, "/params/caching", `{"enabled":false}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	assert.False(t, p.CachingEnabled)

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/params/caching", `{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchJobs(t *testing.T) {
	s := newTestServer(t)
	resp, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/stats/missing/batch", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, s, uploadRequest(t, map[string]string{"key": "art", "coords": "0-0-0-0"},
		pngBytes(t, 1, 1, color.NRGBA{A: 255})))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, s, httptest.NewRequest(http.MethodPost, "/stats/art/batch", nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var job JobView
	require.NoError(t, json.Unmarshal(body, &job))

	// no batch runner is configured, so the job fails
	require.Eventually(t, func() bool {
		_, body := do(t, s, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil))
		var v JobView
		return json.Unmarshal(body, &v) == nil && v.Status == JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/jobs/6f1c1f8e-0b7a-4c59-9d0e-1f2a3b4c5d6e", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, body))
}

func TestConvert(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/convert?coords=1818-806-989-358", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fromCoords ConvertResponse
	require.NoError(t, json.Unmarshal(body, &fromCoords))
	assert.Equal(t, "1818-806-989-358", fromCoords.Coords)

	target := "/convert?lat=" + jsonFloat(fromCoords.Lat) + "&lng=" + jsonFloat(fromCoords.Lng)
	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var back ConvertResponse
	require.NoError(t, json.Unmarshal(body, &back))
	assert.Equal(t, fromCoords.Coords, back.Coords)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/convert?lat=abc", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
