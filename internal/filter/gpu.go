//go:build !nogpu

package filter

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"go.uber.org/zap"

	"wplace_overlay/internal/palette"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// errGPUTimeout is returned when the fence is not signalled in gpuWaitTime.
var errGPUTimeout = errors.New("GPU work timed out")

//go:embed shaders/filter.wgsl
var filterShaderWGSL string

const (
	workgroupSize = 8
	// maxDispatchGroups is the WebGPU default for maxComputeWorkgroupsPerDimension.
	maxDispatchGroups = 65535
	gpuWaitTime       = 5 * time.Second
)

// waitResult turns a fence wait into an error.
func waitResult(ok bool, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("wait for GPU: %w", err)
	case !ok:
		return fmt.Errorf("wait for GPU: %w after %s", errGPUTimeout, gpuWaitTime)
	}
	return nil
}

// GPU runs the palette filter as a wgpu compute shader. The device and
// pipeline are opened once; buffers and bind groups live for one Apply.
type GPU struct {
	mu     sync.Mutex
	logger *zap.Logger

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	initDone       bool
	initErr        error
	externalDevice bool
}

func newGPU(logger *zap.Logger) Backend {
	return &GPU{logger: logger}
}

// NewGPUWithDevice builds the filter on an already opened device. The
// device stays owned by the caller.
func NewGPUWithDevice(device hal.Device, queue hal.Queue, logger *zap.Logger) (*GPU, error) {
	g := &GPU{logger: logger, device: device, queue: queue, externalDevice: true}
	if err := g.createPipeline(); err != nil {
		g.destroyPipeline()
		return nil, err
	}
	g.initDone = true
	return g, nil
}

func (g *GPU) Name() string { return "gpu" }

func (g *GPU) Apply(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, ErrFallbackToCPU
	}
	if (w+workgroupSize-1)/workgroupSize > maxDispatchGroups || (h+workgroupSize-1)/workgroupSize > maxDispatchGroups {
		return nil, ErrFallbackToCPU
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureDevice(); err != nil {
		return nil, ErrFallbackToCPU
	}
	return g.dispatch(src, allowed)
}

// Close releases the pipeline and, when owned, the device.
func (g *GPU) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.destroyPipeline()
	if !g.externalDevice {
		if g.device != nil {
			g.device.Destroy()
		}
		if g.instance != nil {
			g.instance.Destroy()
		}
	}
	g.device = nil
	g.queue = nil
	g.instance = nil
	g.initDone = false
	g.initErr = nil
}

func (g *GPU) ensureDevice() error {
	if g.initDone {
		return g.initErr
	}
	g.initDone = true
	g.initErr = g.initDevice()
	if g.initErr != nil {
		g.logger.Warn("gpu filter unavailable, using cpu", zap.Error(g.initErr))
	}
	return g.initErr
}

func (g *GPU) initDevice() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	g.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	g.device = openDev.Device
	g.queue = openDev.Queue
	if err := g.createPipeline(); err != nil {
		g.destroyPipeline()
		g.device.Destroy()
		g.device = nil
		g.queue = nil
		return fmt.Errorf("create pipeline: %w", err)
	}
	g.logger.Info("gpu filter initialized", zap.String("adapter", selected.Info.Name))
	return nil
}

func (g *GPU) createPipeline() error {
	spirv, err := compileShader(filterShaderWGSL)
	if err != nil {
		return err
	}
	shader, err := g.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "palette_filter",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	g.shader = shader

	bindLayout, err := g.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "palette_filter_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	g.bindLayout = bindLayout

	pipeLayout, err := g.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "palette_filter_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{g.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	g.pipeLayout = pipeLayout

	pipeline, err := g.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "palette_filter_pipeline", Layout: g.pipeLayout,
		Compute: hal.ComputeState{Module: g.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	g.pipeline = pipeline
	return nil
}

func (g *GPU) destroyPipeline() {
	if g.device == nil {
		return
	}
	if g.pipeline != nil {
		g.device.DestroyComputePipeline(g.pipeline)
		g.pipeline = nil
	}
	if g.pipeLayout != nil {
		g.device.DestroyPipelineLayout(g.pipeLayout)
		g.pipeLayout = nil
	}
	if g.bindLayout != nil {
		g.device.DestroyBindGroupLayout(g.bindLayout)
		g.bindLayout = nil
	}
	if g.shader != nil {
		g.device.DestroyShaderModule(g.shader)
		g.shader = nil
	}
}

func (g *GPU) dispatch(src *image.NRGBA, allowed *palette.Set) (*image.NRGBA, error) {
	w, h := uint32(src.Bounds().Dx()), uint32(src.Bounds().Dy()) //nolint:gosec // bounded by the dispatch check
	pixelBytes := packPixels(src)
	bitmap := buildAllowedBitmap(allowed)
	pixelBufSize := uint64(len(pixelBytes))

	paramsBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "palette_filter_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	defer g.device.DestroyBuffer(paramsBuf)

	allowedBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "palette_filter_allowed", Size: uint64(len(bitmap)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create allowed buffer: %w", err)
	}
	defer g.device.DestroyBuffer(allowedBuf)

	pixelBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "palette_filter_pixels", Size: pixelBufSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create pixel buffer: %w", err)
	}
	defer g.device.DestroyBuffer(pixelBuf)

	stagingBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "palette_filter_staging", Size: pixelBufSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer g.device.DestroyBuffer(stagingBuf)

	g.queue.WriteBuffer(paramsBuf, 0, makeParams(w, h, allowed != nil))
	g.queue.WriteBuffer(allowedBuf, 0, bitmap)
	g.queue.WriteBuffer(pixelBuf, 0, pixelBytes)

	bg, err := g.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "palette_filter_bind", Layout: g.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: allowedBuf.NativeHandle(), Offset: 0, Size: uint64(len(bitmap))}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: pixelBuf.NativeHandle(), Offset: 0, Size: pixelBufSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer g.device.DestroyBindGroup(bg)

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "palette_filter_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("palette_filter"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "palette_filter_pass"})
	pass.SetPipeline(g.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch((w+workgroupSize-1)/workgroupSize, (h+workgroupSize-1)/workgroupSize, 1)
	pass.End()
	encoder.CopyBufferToBuffer(pixelBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: pixelBufSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer g.device.FreeCommandBuffer(cmdBuf)

	fence, err := g.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer g.device.DestroyFence(fence)
	if err := g.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := waitResult(g.device.Wait(fence, 1, gpuWaitTime)); err != nil {
		return nil, err
	}

	readback := make([]byte, pixelBufSize)
	if err := g.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return unpackPixels(readback, src.Bounds()), nil
}

func compileShader(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile palette filter shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}
