package httpapi

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"wplace_overlay/internal/overlay"
	"wplace_overlay/internal/stats"
)

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Layers []string `json:"layers"`
	stats.Summary
}

// aggregatedStats serves GET /stats?layers=a,b&bucket=true.
func (s *Server) aggregatedStats(c *fiber.Ctx) error {
	keys := []string{}
	for _, k := range strings.Split(c.Query("layers"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			if _, ok := s.engine.Layer(k); !ok {
				return fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, k)
			}
			keys = append(keys, k)
		}
	}
	sum := stats.Summarize(s.engine.AggregatedStats(keys...), c.QueryBool("bucket", true))
	return c.JSON(StatsResponse{Layers: keys, Summary: sum})
}

func (s *Server) perTileStats(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, ok := s.engine.Layer(key); !ok {
		return fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, key)
	}
	return c.JSON(fiber.Map{"layer": key, "tiles": s.engine.PerTileStats(key)})
}

// startBatch launches a batch recomputation in the background and returns
// the job id.
func (s *Server) startBatch(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, ok := s.engine.Layer(key); !ok {
		return fmt.Errorf("%w: %s", overlay.ErrLayerNotFound, key)
	}
	j := s.jobs.start(s.ctx, key, s.engine.RunBatchStats)
	return c.Status(fiber.StatusAccepted).JSON(j.snapshot())
}

func (s *Server) getJob(c *fiber.Ctx) error {
	j, err := s.jobs.get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(j.snapshot())
}
