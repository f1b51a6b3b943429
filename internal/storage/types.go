package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures history storage.
//
// Driver values:
//   - "file": JSON Lines files with periodic compaction
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	Keep        int           // newest entries retained per subject; 0 means default (200)
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const defaultKeep = 200

func (c Config) keep() int {
	if c.Keep <= 0 {
		return defaultKeep
	}
	return c.Keep
}

// CaptureEntry records one camera capture attempt.
// Keep it compact and schema-stable.
type CaptureEntry struct {
	Camera string    `json:"camera"`
	At     time.Time `json:"at"`
	OK     bool      `json:"ok"`
	Path   string    `json:"path,omitempty"`
	Bytes  int64     `json:"bytes,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// ExportEntry records one export run.
type ExportEntry struct {
	Name      string    `json:"name"`
	At        time.Time `json:"at"`
	InputDir  string    `json:"input_dir"`
	OutputDir string    `json:"output_dir"`
	Images    int       `json:"images"`
	VideoPath string    `json:"video_path,omitempty"`
	Error     string    `json:"error,omitempty"`
}
