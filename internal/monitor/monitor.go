// Package monitor follows a websocket feed of upstream tile changes and
// drops the cached renders of every tile that changed.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/utils"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 20 * time.Second
	defaultBaseBackoff  = 2 * time.Second
	defaultMaxBackoff   = 5 * time.Minute
	maxBackoffShift     = 8
)

// errFeedError marks an error reported by the feed itself. The session is
// closed and the connection retried.
var errFeedError = errors.New("feed error")

// TileInvalidator drops a rendered tile.
type TileInvalidator interface {
	InvalidateTile(ctx context.Context, addr overlay.TileAddress) error
}

// TileForgetter drops a fetched live tile.
type TileForgetter interface {
	Forget(x, y int)
}

// Options configures a Monitor. Zero durations take the defaults.
type Options struct {
	URL          string
	Invalidator  TileInvalidator
	Forgetter    TileForgetter
	Logger       *zap.Logger
	ReadTimeout  time.Duration
	PingInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Monitor WebSocket監視クライアント
type Monitor struct {
	url          string
	invalidator  TileInvalidator
	forgetter    TileForgetter
	logger       *zap.Logger
	readTimeout  time.Duration
	pingInterval time.Duration
	baseBackoff  time.Duration
	maxBackoff   time.Duration

	connected   atomic.Bool
	invalidated atomic.Uint64
	writeMu     sync.Mutex
}

// New creates a Monitor; call Run to start it.
func New(opts Options) *Monitor {
	m := &Monitor{
		url:          opts.URL,
		invalidator:  opts.Invalidator,
		forgetter:    opts.Forgetter,
		logger:       opts.Logger,
		readTimeout:  opts.ReadTimeout,
		pingInterval: opts.PingInterval,
		baseBackoff:  opts.BaseBackoff,
		maxBackoff:   opts.MaxBackoff,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("monitor")
	if m.readTimeout <= 0 {
		m.readTimeout = defaultReadTimeout
	}
	if m.pingInterval <= 0 {
		m.pingInterval = defaultPingInterval
	}
	if m.baseBackoff <= 0 {
		m.baseBackoff = defaultBaseBackoff
	}
	if m.maxBackoff <= 0 {
		m.maxBackoff = defaultMaxBackoff
	}
	return m
}

// IsConnected reports whether a feed connection is open.
func (m *Monitor) IsConnected() bool {
	return m.connected.Load()
}

// Invalidated counts the tile invalidations applied so far.
func (m *Monitor) Invalidated() uint64 {
	return m.invalidated.Load()
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil)
		if err == nil {
			m.logger.Info("feed connected", zap.String("url", m.url))
			if m.session(ctx, conn) {
				attempt = 0
			}
			if ctx.Err() != nil {
				return nil
			}
		} else {
			m.logger.Warn("feed dial failed", zap.String("url", m.url), zap.Error(err))
		}

		delay := m.backoff(attempt)
		if attempt < maxBackoffShift {
			attempt++
		}
		m.logger.Info("feed disconnected, retrying", zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (m *Monitor) backoff(attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := m.baseBackoff * time.Duration(1<<uint(attempt))
	if d > m.maxBackoff {
		d = m.maxBackoff
	}
	return d
}

// session reads conn until it fails or the feed reports an error. It
// reports whether any message arrived.
func (m *Monitor) session(ctx context.Context, conn *websocket.Conn) bool {
	m.connected.Store(true)
	defer m.connected.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go m.pingLoop(conn, done)

	conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	})

	received := false
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("feed read failed", zap.Error(err))
			}
			return received
		}
		received = true
		conn.SetReadDeadline(time.Now().Add(m.readTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		if err := m.handleMessage(ctx, message); err != nil {
			if errors.Is(err, errFeedError) {
				m.logger.Warn("feed reported an error, reconnecting", zap.Error(err))
				return received
			}
			m.logger.Warn("feed message ignored", zap.Error(err))
		}
	}
}

func (m *Monitor) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("feed ping failed", zap.Error(err))
				return
			}
		}
	}
}

type feedMessage struct {
	Type    string                `json:"type"`
	Tiles   []overlay.TileAddress `json:"tiles"`
	Message string                `json:"message"`
}

// parseMessage returns the tiles named by a tile_update message. Other
// message types yield no tiles.
func parseMessage(message []byte) ([]overlay.TileAddress, error) {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}
	switch msg.Type {
	case "tile_update":
	case "error":
		return nil, fmt.Errorf("%w: %s", errFeedError, msg.Message)
	default:
		return nil, nil
	}

	out := make([]overlay.TileAddress, 0, len(msg.Tiles))
	for _, t := range msg.Tiles {
		if t.X < 0 || t.X >= utils.WplaceTilesPerEdge || t.Y < 0 || t.Y >= utils.WplaceTilesPerEdge {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Monitor) handleMessage(ctx context.Context, message []byte) error {
	tiles, err := parseMessage(message)
	if err != nil {
		return err
	}
	for _, t := range tiles {
		if m.forgetter != nil {
			m.forgetter.Forget(t.X, t.Y)
		}
		if err := m.invalidator.InvalidateTile(ctx, t); err != nil {
			m.logger.Warn("tile invalidation failed", zap.String("tile", t.Key()), zap.Error(err))
			continue
		}
		m.invalidated.Add(1)
	}
	if len(tiles) > 0 {
		m.logger.Debug("tiles changed upstream", zap.Int("count", len(tiles)))
	}
	return nil
}
