package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wplace_overlay/internal/utils"
)

// SettingsFile は data_dir 内の保存ファイル名
const SettingsFile = "render_settings.json"

// RenderSettings 再起動後も保持する描画パラメータ
type RenderSettings struct {
	FilterIDs      []int  `json:"filter_ids"`           // 有効な色ID
	FilterEnabled  bool   `json:"filter_enabled"`       // false ならすべての色を表示
	Mode           string `json:"mode"`                 // 強調モード
	Device         string `json:"device"`               // "gpu" or "cpu"
	CachingEnabled bool   `json:"caching_enabled"`      // タイルキャッシュON/OFF
	UpdatedBy      string `json:"updated_by,omitempty"` // 最後に変更したフロントエンド
}

// DefaultRenderSettings config の render セクションから初期値を作る
func DefaultRenderSettings(r RenderConfig) RenderSettings {
	s := RenderSettings{
		Mode:           r.Mode,
		Device:         r.Device,
		CachingEnabled: r.CachingEnabled,
	}
	if len(r.FilterIDs) > 0 {
		s.FilterEnabled = true
		s.FilterIDs = append([]int(nil), r.FilterIDs...)
	}
	return s
}

// SettingsStore 描画パラメータの永続化
type SettingsStore struct {
	mu       sync.RWMutex
	current  RenderSettings
	filePath string
}

// NewSettingsStore dataDir/render_settings.json を読み込む。存在しなければ
// defaults を保存する。
func NewSettingsStore(dataDir string, defaults RenderSettings) (*SettingsStore, error) {
	s := &SettingsStore{
		current:  defaults,
		filePath: filepath.Join(dataDir, SettingsFile),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveUnsafe()
	}
	if err != nil {
		return err
	}

	loaded := s.current
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse %s: %w", s.filePath, err)
	}
	s.current = loaded
	return nil
}

func (s *SettingsStore) saveUnsafe() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.filePath, data)
}

// Get 現在の設定を返す
func (s *SettingsStore) Get() RenderSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.FilterIDs = append([]int(nil), s.current.FilterIDs...)
	return out
}

// Update 設定を変更して保存する
func (s *SettingsStore) Update(apply func(*RenderSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	next.FilterIDs = append([]int(nil), s.current.FilterIDs...)
	apply(&next)

	prev := s.current
	s.current = next
	if err := s.saveUnsafe(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

// Path 保存先
func (s *SettingsStore) Path() string { return s.filePath }
