package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/config"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/palette"
)

func TestParamsFromSettings(t *testing.T) {
	p, err := paramsFromSettings(config.RenderSettings{Mode: "fill", Device: "gpu"})
	require.NoError(t, err)
	assert.Nil(t, p.Filter, "disabled filter shows every colour")
	assert.Equal(t, enhance.ModeFill, p.Mode)
	assert.Equal(t, filter.DeviceGPU, p.Device)

	p, err = paramsFromSettings(config.RenderSettings{FilterEnabled: true})
	require.NoError(t, err)
	require.NotNil(t, p.Filter)
	assert.Zero(t, p.Filter.Len(), "enabled but empty filter shows nothing")

	_, err = paramsFromSettings(config.RenderSettings{FilterEnabled: true, FilterIDs: []int{999}})
	assert.Error(t, err)
	_, err = paramsFromSettings(config.RenderSettings{Mode: "sparkle"})
	assert.Error(t, err)
	_, err = paramsFromSettings(config.RenderSettings{Device: "tpu"})
	assert.Error(t, err)
}

func TestApplyParamsRoundTrip(t *testing.T) {
	set, err := palette.SetFromIDs([]int{5, 1})
	require.NoError(t, err)
	in := compositor.Params{Filter: set, Mode: enhance.ModeRedBorder, Device: filter.DeviceCPU}

	var s config.RenderSettings
	applyParams(&s, in, true)
	assert.True(t, s.FilterEnabled)
	assert.Equal(t, []int{1, 5}, s.FilterIDs)
	assert.True(t, s.CachingEnabled)

	out, err := paramsFromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, in.Mode, out.Mode)
	assert.Equal(t, in.Device, out.Device)
	assert.Equal(t, set.Colors(), out.Filter.Colors())

	applyParams(&s, compositor.Params{Mode: enhance.ModeDot}, false)
	assert.False(t, s.FilterEnabled)
	assert.Nil(t, s.FilterIDs)
}
