package app

import (
	"fmt"
	"strings"
	"time"

	"lapsed/internal/config"
	"lapsed/internal/storage"
	"lapsed/internal/task"
)

func mapManagerConfig(cfg *config.Config) (task.Config, error) {
	mc := cfg.Manager
	if mc.Workers < 0 {
		return task.Config{}, fmt.Errorf("manager.workers must be >= 0")
	}
	if mc.QueueSize < 0 {
		return task.Config{}, fmt.Errorf("manager.queue_size must be >= 0")
	}
	if mc.ProgressEventsPerSec < 0 {
		return task.Config{}, fmt.Errorf("manager.progress_events_per_sec must be >= 0")
	}
	retention, err := config.ParseDurationField("manager.retention", mc.Retention)
	if err != nil {
		return task.Config{}, err
	}
	return task.Config{
		Workers:              mc.Workers,
		QueueSize:            mc.QueueSize,
		Retention:            retention,
		ProgressEventsPerSec: mc.ProgressEventsPerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if sc.Keep < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.keep must be >= 0")
	}

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path, Keep: sc.Keep}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 1*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, Keep: sc.Keep, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
