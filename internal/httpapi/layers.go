package httpapi

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"wplace_overlay/internal/overlay"
)

func (s *Server) listLayers(c *fiber.Ctx) error {
	layers := s.engine.Layers()
	out := make([]LayerView, 0, len(layers))
	for _, l := range layers {
		out = append(out, layerView(l))
	}
	return c.JSON(fiber.Map{"layers": out, "total": len(out)})
}

func (s *Server) getLayer(c *fiber.Ctx) error {
	l, ok := s.engine.Layer(c.Params("key"))
	if !ok {
		return fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, c.Params("key"))
	}
	return c.JSON(layerView(l))
}

// layerImage returns the anchored artwork rebuilt from its slices.
func (s *Server) layerImage(c *fiber.Ctx) error {
	l, ok := s.engine.Layer(c.Params("key"))
	if !ok {
		return fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, c.Params("key"))
	}
	img := overlay.Reassemble(l.Slices, l.Anchor, overlay.TileSize, l.Width, l.Height)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode layer image: %w", err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// addLayer accepts multipart/form-data with an "image" file and either
// "coords" or "lat"+"lng". "key" defaults to a random id.
func (s *Server) addLayer(c *fiber.Ctx) error {
	form := AnchorForm{
		Key:    strings.TrimSpace(c.FormValue("key")),
		Coords: strings.TrimSpace(c.FormValue("coords")),
	}
	for name, dst := range map[string]**float64{"lat": &form.Lat, "lng": &form.Lng} {
		raw := strings.TrimSpace(c.FormValue(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest(name + " must be a number")
		}
		*dst = &v
	}
	if err := validateStruct(&form); err != nil {
		return err
	}
	anchor, err := form.anchor()
	if err != nil {
		return err
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest("image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return badRequest("unsupported or corrupt image: " + err.Error())
	}

	key := form.Key
	if key == "" {
		key = uuid.NewString()
	}
	layer, err := s.engine.AddLayer(c.UserContext(), key, img, anchor)
	if err != nil {
		return err
	}
	s.logger.Sugar().Infow("layer uploaded", "layer", key, "format", format, "file", fh.Filename)
	return c.Status(fiber.StatusCreated).JSON(layerView(layer))
}

func (s *Server) removeLayer(c *fiber.Ctx) error {
	if err := s.engine.RemoveLayer(c.UserContext(), c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) clearLayers(c *fiber.Ctx) error {
	if err := s.engine.ClearAllLayers(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setDrawEnabled(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	l, err := s.engine.SetDrawEnabled(c.UserContext(), c.Params("key"), *req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(layerView(l))
}
