package main

import (
	"fmt"

	"wplace_overlay/internal/compositor"
	"wplace_overlay/internal/config"
	"wplace_overlay/internal/enhance"
	"wplace_overlay/internal/filter"
	"wplace_overlay/internal/palette"
)

// paramsFromSettings restores the engine parameters saved on disk.
func paramsFromSettings(s config.RenderSettings) (compositor.Params, error) {
	var p compositor.Params
	if s.FilterEnabled {
		set, err := palette.SetFromIDs(s.FilterIDs)
		if err != nil {
			return p, fmt.Errorf("filter: %w", err)
		}
		p.Filter = set
	}
	if s.Mode != "" {
		mode, err := enhance.ParseMode(s.Mode)
		if err != nil {
			return p, err
		}
		p.Mode = mode
	}
	if s.Device != "" {
		device, err := filter.ParseDevice(s.Device)
		if err != nil {
			return p, err
		}
		p.Device = device
	}
	return p, nil
}

// applyParams writes the engine parameters back into the saved settings.
func applyParams(s *config.RenderSettings, p compositor.Params, caching bool) {
	s.FilterEnabled = p.Filter != nil
	s.FilterIDs = nil
	if p.Filter != nil {
		s.FilterIDs = p.Filter.IDs()
	}
	s.Mode = string(p.Mode)
	s.Device = string(p.Device)
	s.CachingEnabled = caching
	s.UpdatedBy = "engine"
}
