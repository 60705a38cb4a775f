// Package version identifies the running build.
package version

import "time"

// Version は -ldflags "-X wplace_overlay/internal/version.Version=..." で上書きする
var Version = "0.1.0"

// Info バージョンと起動時刻
type Info struct {
	Version   string
	StartTime time.Time
}

// NewInfo 現在時刻を起動時刻とする
func NewInfo() *Info {
	return &Info{
		Version:   Version,
		StartTime: time.Now(),
	}
}

// Uptime 起動からの経過時間を返す
func (i *Info) Uptime() time.Duration {
	return time.Since(i.StartTime)
}
