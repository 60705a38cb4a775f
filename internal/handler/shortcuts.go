package handler

import (
	"strings"
)

// resolveShortcut 登録されていないコマンド名を既存コマンドに読み替える
//
//	!1818-806          -> overlaytile 1818-806
//	!1818-806-989-358  -> overlaytile 1818-806-989-358
//	!<レイヤー名>       -> progress <レイヤー名>
func (h *Handler) resolveShortcut(name string) (string, []string, bool) {
	if isTileShortcut(name) {
		if _, ok := h.registry.Get("overlaytile"); ok {
			return "overlaytile", []string{name}, true
		}
		return "", nil, false
	}
	if h.engine != nil {
		if _, ok := h.engine.Layer(name); ok {
			return "progress", []string{name}, true
		}
	}
	return "", nil, false
}

func isTileShortcut(name string) bool {
	parts := strings.Split(name, "-")
	if len(parts) != 2 && len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
