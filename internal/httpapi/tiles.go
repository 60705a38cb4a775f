package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"wplace_overlay/internal/overlay"
)

// getTile fetches the live base tile upstream and renders the overlay on it.
func (s *Server) getTile(c *fiber.Ctx) error {
	addr, err := tileParams(c)
	if err != nil {
		return err
	}
	if s.tiles == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no upstream tile source configured")
	}
	base, err := s.tiles.FetchTile(c.UserContext(), addr.X, addr.Y)
	if err != nil {
		return err
	}
	return s.sendRendered(c, addr, base)
}

// renderTile renders the overlay on the base tile sent as the request body.
func (s *Server) renderTile(c *fiber.Ctx) error {
	addr, err := tileParams(c)
	if err != nil {
		return err
	}
	body := c.Body()
	if len(body) == 0 {
		return badRequest("request body must contain the base tile image")
	}
	base := make([]byte, len(body))
	copy(base, body)
	return s.sendRendered(c, addr, base)
}

func (s *Server) sendRendered(c *fiber.Ctx, addr overlay.TileAddress, base []byte) error {
	out, err := s.engine.RenderTile(c.UserContext(), addr, base)
	if err != nil {
		return err
	}
	s.logger.Debug("tile rendered", zap.String("tile", addr.Key()), zap.Int("bytes", len(out)))
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(out)
}

func (s *Server) invalidateTile(c *fiber.Ctx) error {
	addr, err := tileParams(c)
	if err != nil {
		return err
	}
	if err := s.engine.InvalidateTile(c.UserContext(), addr); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
