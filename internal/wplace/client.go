// Package wplace downloads live tiles from the wplace backend.
package wplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"wplace_overlay/internal/utils"
)

// DefaultTileURL is the upstream tile endpoint; the two verbs are tile x and y.
const DefaultTileURL = "https://backend.wplace.live/files/s0/tiles/%d/%d.png"

// ErrUpstreamStatus is wrapped by FetchTile when the backend answers non-200.
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// Config は Client の設定
type Config struct {
	TileURL   string
	RateLimit int
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// DefaultConfig は本番向けの設定
func DefaultConfig() Config {
	return Config{
		TileURL:   DefaultTileURL,
		RateLimit: 3,
		Timeout:   12 * time.Second,
		CacheTTL:  2 * time.Minute,
	}
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// Client はホスト単位でレート制限しつつタイルを取得し、短時間メモリに保持する
type Client struct {
	http    *http.Client
	limiter *utils.RateLimiter
	tileURL string
	host    string
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu    sync.Mutex
	items map[string]cacheEntry
}

// NewClient creates a client. A nil limiter disables rate limiting.
func NewClient(cfg Config, limiter *utils.RateLimiter, logger *zap.Logger) (*Client, error) {
	if cfg.TileURL == "" {
		cfg.TileURL = DefaultTileURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	u, err := url.Parse(fmt.Sprintf(cfg.TileURL, 0, 0))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid tile url %q: %v", cfg.TileURL, err)
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   32,
				MaxConnsPerHost:       32,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter: limiter,
		tileURL: cfg.TileURL,
		host:    u.Host,
		ttl:     cfg.CacheTTL,
		now:     time.Now,
		logger:  logger,
		items:   make(map[string]cacheEntry),
	}, nil
}

// FetchTile returns the PNG bytes of tile (x, y), served from the short-lived
// memory cache when possible.
func (c *Client) FetchTile(ctx context.Context, x, y int) ([]byte, error) {
	key := strconv.Itoa(x) + "," + strconv.Itoa(y)
	if data, ok := c.cached(key); ok {
		return data, nil
	}
	data, err := c.FetchTileNoCache(ctx, x, y)
	if err != nil {
		return nil, err
	}
	c.store(key, data)
	return data, nil
}

// FetchTileNoCache always hits the backend.
func (c *Client) FetchTileNoCache(ctx context.Context, x, y int) ([]byte, error) {
	if x < 0 || y < 0 || x >= utils.WplaceTilesPerEdge || y >= utils.WplaceTilesPerEdge {
		return nil, fmt.Errorf("tile %d-%d out of range", x, y)
	}
	u, err := url.Parse(fmt.Sprintf(c.tileURL, x, y))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixNano()%10000000, 10))
	u.RawQuery = q.Encode()

	data, err := utils.Do(ctx, c.limiter, c.host, func() ([]byte, error) {
		return c.get(ctx, u.String(), x, y)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("tile downloaded", zap.Int("x", x), zap.Int("y", y), zap.Int("bytes", len(data)))
	return data, nil
}

func (c *Client) get(ctx context.Context, target string, x, y int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed for tile %d-%d: %w", x, y, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tile %d-%d: %s", ErrUpstreamStatus, x, y, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Forget drops the memory copy of one tile, e.g. after a live update.
func (c *Client) Forget(x, y int) {
	c.mu.Lock()
	delete(c.items, strconv.Itoa(x)+","+strconv.Itoa(y))
	c.mu.Unlock()
}

func (c *Client) cached(key string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return e.data, true
}

func (c *Client) store(key string, data []byte) {
	if c.ttl <= 0 || len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = cacheEntry{data: data, expiresAt: now.Add(c.ttl)}
}
