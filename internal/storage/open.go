package storage

import (
	"context"
	"errors"
	"strings"

	logx "lapsed/pkg/logx"
)

// Store is the history API used by job bodies and the diagnostics surface.
// Recent* return newest-first, at most n entries (n<=0 means everything kept).
type Store interface {
	AppendCapture(ctx context.Context, e CaptureEntry) error
	AppendExport(ctx context.Context, e ExportEntry) error
	RecentCaptures(ctx context.Context, camera string, n int) ([]CaptureEntry, error)
	RecentExports(ctx context.Context, name string, n int) ([]ExportEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
