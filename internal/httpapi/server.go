// Package httpapi exposes the overlay engine over HTTP.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/version"
)

// TileFetcher supplies live base tiles for GET /tiles.
type TileFetcher interface {
	FetchTile(ctx context.Context, x, y int) ([]byte, error)
}

// Options configures a Server.
type Options struct {
	Engine      *compositor.Engine
	Tiles       TileFetcher
	Logger      *zap.Logger
	MaxUploadMB int
}

// Server is the fiber application plus the background batch jobs it starts.
type Server struct {
	app    *fiber.App
	engine *compositor.Engine
	tiles  TileFetcher
	jobs   *jobRegistry
	info   *version.Info
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds the app and registers every route.
func NewServer(opts Options) *Server {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 32
	}
	app := fiber.New(fiber.Config{
		AppName:               "wplace overlay " + version.Version,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           60 * time.Second,
		BodyLimit:             opts.MaxUploadMB << 20,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(opts.Logger),
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		app:    app,
		engine: opts.Engine,
		tiles:  opts.Tiles,
		jobs:   newJobRegistry(),
		info:   version.NewInfo(),
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(requestLogger(s.logger))
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": s.info.Version,
			"uptime":  s.info.Uptime().Round(time.Second).String(),
		})
	})

	s.app.Get("/tiles/:x/:y", s.getTile)
	s.app.Post("/tiles/:x/:y", s.renderTile)
	s.app.Delete("/tiles/:x/:y/cache", s.invalidateTile)

	s.app.Get("/layers", s.listLayers)
	s.app.Post("/layers", s.addLayer)
	s.app.Delete("/layers", s.clearLayers)
	s.app.Get("/layers/:key", s.getLayer)
	s.app.Get("/layers/:key/image", s.layerImage)
	s.app.Delete("/layers/:key", s.removeLayer)
	s.app.Put("/layers/:key/draw", s.setDrawEnabled)

	s.app.Get("/params", s.getParams)
	s.app.Put("/params/filter", s.setFilter)
	s.app.Put("/params/mode", s.setMode)
	s.app.Put("/params/device", s.setDevice)
	s.app.Put("/params/caching", s.setCaching)

	s.app.Get("/palette", s.listPalette)
	s.app.Get("/stats", s.aggregatedStats)
	s.app.Get("/stats/:key/tiles", s.perTileStats)
	s.app.Post("/stats/:key/batch", s.startBatch)
	s.app.Get("/jobs/:id", s.getJob)

	s.app.Get("/convert", s.convert)
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and cancels running batch jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)))
		return err
	}
}
