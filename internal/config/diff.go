package config

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	logx "lapsed/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes camera source URLs,
// which may embed credentials), and (3) the names of cameras/exports whose
// definition changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Manager (worker pool)
	if !reflect.DeepEqual(oldCfg.Manager, newCfg.Manager) {
		changed = append(changed, "manager")
		attrs = append(attrs,
			logx.Int("manager.workers", newCfg.Manager.Workers),
			logx.Int("manager.queue_size", newCfg.Manager.QueueSize),
			logx.String("manager.retention", strings.TrimSpace(newCfg.Manager.Retention)),
		)
	}

	// Scheduler (tick actor)
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
		)
	}

	// Storage. Nil means disabled.
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet ||
		!reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	// Subjects (cameras + exports): summarize only; details at debug.
	subjects := diffSubjects(oldCfg, newCfg)
	if len(subjects) > 0 {
		changed = append(changed, "subjects")
		attrs = append(attrs,
			logx.Int("subjects.changed_count", len(subjects)),
			logx.Int("cameras.enabled_count", countEnabledCameras(newCfg.Cameras)),
			logx.Int("exports.enabled_count", countEnabledExports(newCfg.Exports)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, subjects
}

func countEnabledCameras(cams []CameraConfig) int {
	n := 0
	for _, c := range cams {
		if c.Enabled {
			n++
		}
	}
	return n
}

func countEnabledExports(exps []ExportConfig) int {
	n := 0
	for _, e := range exps {
		if e.Enabled {
			n++
		}
	}
	return n
}

// diffSubjects compares cameras and exports by canonical JSON so key order
// and whitespace never register as changes.
func diffSubjects(oldCfg, newCfg *Config) []string {
	oldSet := subjectHashes(oldCfg)
	newSet := subjectHashes(newCfg)

	set := map[string]struct{}{}
	for k := range oldSet {
		set[k] = struct{}{}
	}
	for k := range newSet {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		if oldSet[name] != newSet[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func subjectHashes(cfg *Config) map[string]uint64 {
	m := make(map[string]uint64, len(cfg.Cameras)+len(cfg.Exports))
	for _, c := range cfg.Cameras {
		if b, err := json.Marshal(c); err == nil {
			m["camera/"+c.Name] = hashBytes(b)
		}
	}
	for _, e := range cfg.Exports {
		if b, err := json.Marshal(e); err == nil {
			m["export/"+e.Name] = hashBytes(b)
		}
	}
	return m
}
