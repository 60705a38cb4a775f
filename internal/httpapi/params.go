package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/palette"
)

// ParamsView is the JSON form of the render parameters.
type ParamsView struct {
	FilterEnabled  bool           `json:"filter_enabled"`
	FilterIDs      []int          `json:"filter_ids"`
	Mode           enhance.Mode   `json:"mode"`
	Modes          []enhance.Mode `json:"modes"`
	Device         filter.Device  `json:"device"`
	CachingEnabled bool           `json:"caching_enabled"`
}

func paramsView(p compositor.Params, caching bool) ParamsView {
	ids := p.Filter.IDs()
	if ids == nil {
		ids = []int{}
	}
	return ParamsView{
		FilterEnabled:  p.Filter != nil,
		FilterIDs:      ids,
		Mode:           p.Mode,
		Modes:          enhance.Modes(),
		Device:         p.Device,
		CachingEnabled: caching,
	}
}

func (s *Server) currentParams(c *fiber.Ctx) error {
	return c.JSON(paramsView(s.engine.Params(), s.engine.CachingEnabled()))
}

func (s *Server) getParams(c *fiber.Ctx) error {
	return s.currentParams(c)
}

func (s *Server) setFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var set *palette.Set
	if req.Enabled {
		var err error
		if set, err = palette.SetFromIDs(req.IDs); err != nil {
			return fmt.Errorf("%w: %v", overlay.ErrInvalidInput, err)
		}
	}
	if err := s.engine.SetFilter(c.UserContext(), set); err != nil {
		return err
	}
	return s.currentParams(c)
}

func (s *Server) setMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	mode, err := enhance.ParseMode(req.Mode)
	if err != nil {
		return badRequest(err.Error())
	}
	if err := s.engine.SetEnhancementMode(c.UserContext(), mode); err != nil {
		return err
	}
	return s.currentParams(c)
}

func (s *Server) setDevice(c *fiber.Ctx) error {
	var req DeviceRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.engine.SetComputeDevice(c.UserContext(), filter.Device(req.Device)); err != nil {
		return err
	}
	return s.currentParams(c)
}

func (s *Server) setCaching(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s.engine.SetCachingEnabled(*req.Enabled)
	return s.currentParams(c)
}

func (s *Server) listPalette(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"colors": palette.Catalog()})
}
