//go:build nogpu

package filter

import (
	"image"

	"go.uber.org/zap"

	"wplace_overlay/internal/palette"
)

type noGPU struct{}

func newGPU(*zap.Logger) Backend { return noGPU{} }

func (noGPU) Name() string { return "gpu-disabled" }

func (noGPU) Apply(*image.NRGBA, *palette.Set) (*image.NRGBA, error) {
	return nil, ErrFallbackToCPU
}
