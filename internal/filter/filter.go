// Package filter hides overlay pixels whose colour is not in the enabled
// palette subset. Two backends share one contract: a GPU compute path and a
// CPU loop. Callers obtain a backend from New and never see GPU failures.
package filter

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"wplace_overlay/internal/palette"
)

// ErrFallbackToCPU tells the caller the GPU cannot take this input.
var ErrFallbackToCPU = errors.New("filter: falling back to CPU")

// Device selects the compute device.
type Device string

const (
	DeviceGPU Device = "gpu"
	DeviceCPU Device = "cpu"
)

// ParseDevice accepts "gpu" or "cpu" in any case.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceGPU:
		return DeviceGPU, nil
	case DeviceCPU:
		return DeviceCPU, nil
	}
	return "", fmt.Errorf("unknown compute device %q", s)
}

// Backend applies a colour filter to an overlay slice.
//
// Pixels with alpha 0 are left untouched. A nil allowed set passes every
// pixel. Otherwise any pixel whose RGB is not exactly in the set gets
// alpha 0. The input image is never modified.
type Backend interface {
	Name() string
	Apply(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error)
}

// New returns the backend for device. The GPU backend is wrapped so that
// any failure is retried on the CPU and never surfaced.
func New(device Device, logger *zap.Logger) Backend {
	cpu := NewCPU()
	if device != DeviceGPU {
		return cpu
	}
	return &fallback{
		primary:  newGPU(logger),
		fallback: cpu,
		logger:   logger,
	}
}

type fallback struct {
	primary  Backend
	fallback Backend
	logger   *zap.Logger
}

func (f *fallback) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *fallback) Apply(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error) {
	out, err := f.tryPrimary(src, allowed)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrFallbackToCPU) {
		f.logger.Warn("gpu filter failed, retrying on cpu", zap.Error(err))
	}
	return f.fallback.Apply(src, allowed)
}

func (f *fallback) tryPrimary(src *image.NRGBA, allowed *palette.Set) (out *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("gpu filter panic: %v", r)
		}
	}()
	return f.primary.Apply(src, allowed)
}

// Closer is implemented by backends that hold device resources.
type Closer interface {
	Close()
}

// Close releases device resources held by b, if any.
func Close(b Backend) {
	if f, ok := b.(*fallback); ok {
		Close(f.primary)
		return
	}
	if c, ok := b.(Closer); ok {
		c.Close()
	}
}
