package config

import (
	"fmt"
	"strings"
	"time"

	"lapsed/internal/schedule"
	"lapsed/internal/timefilter"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Manager   ManagerConfig   `json:"manager"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`

	Cameras []CameraConfig `json:"cameras"`
	Exports []ExportConfig `json:"exports"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ManagerConfig controls the task manager's worker pool.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - retention: "10m"
//   - progress_events_per_sec: 5
type ManagerConfig struct {
	Workers              int    `json:"workers,omitempty"`
	QueueSize            int    `json:"queue_size,omitempty"`
	Retention            string `json:"retention,omitempty"`
	ProgressEventsPerSec int    `json:"progress_events_per_sec,omitempty"`
}

// SchedulerConfig controls the tick actor.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is a Go duration string; default "1s".
	Tick string `json:"tick,omitempty"`
}

// StorageConfig controls the history store. Nil section means disabled.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./lapsed_history" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	Keep        int    `json:"keep,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig is one schedule attached to a camera or export.
//
// type "cron" uses second/minute/hour sub-expressions; type "interval" uses
// interval_amount + interval_unit anchored at anchor (RFC3339, defaults to
// process start when omitted).
type ScheduleConfig struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`

	Second string `json:"second,omitempty"`
	Minute string `json:"minute,omitempty"`
	Hour   string `json:"hour,omitempty"`

	IntervalAmount int    `json:"interval_amount,omitempty"`
	IntervalUnit   string `json:"interval_unit,omitempty"`
	Anchor         string `json:"anchor,omitempty"`
}

// Expression builds the schedule expression this block describes.
func (s ScheduleConfig) Expression() (schedule.Expression, error) {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "cron", "":
		expr, err := schedule.NewCron(
			orStar(s.Second), orStar(s.Minute), orStar(s.Hour))
		if err != nil {
			return schedule.Expression{}, err
		}
		expr.Enabled = s.Enabled
		return expr, nil
	case "interval":
		unit, err := schedule.ParseUnit(s.IntervalUnit)
		if err != nil {
			return schedule.Expression{}, err
		}
		anchor := time.Now()
		if strings.TrimSpace(s.Anchor) != "" {
			anchor, err = time.Parse(time.RFC3339, s.Anchor)
			if err != nil {
				return schedule.Expression{}, fmt.Errorf("anchor: %w", err)
			}
		}
		expr, err := schedule.NewInterval(s.IntervalAmount, unit, anchor)
		if err != nil {
			return schedule.Expression{}, err
		}
		expr.Enabled = s.Enabled
		return expr, nil
	default:
		return schedule.Expression{}, fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

func orStar(s string) string {
	if strings.TrimSpace(s) == "" {
		return "*"
	}
	return s
}

type CameraConfig struct {
	Name      string           `json:"name"`
	Enabled   bool             `json:"enabled"`
	Source    string           `json:"source"`
	OutputDir string           `json:"output_dir"`
	Prefix    string           `json:"prefix,omitempty"`
	Ext       string           `json:"ext,omitempty"`
	Schedules []ScheduleConfig `json:"schedules"`
}

type ExportConfig struct {
	Name      string           `json:"name"`
	Enabled   bool             `json:"enabled"`
	InputDir  string           `json:"input_dir"`
	OutputDir string           `json:"output_dir"`
	Prefix    string           `json:"prefix,omitempty"`
	Filter    FilterConfig     `json:"filter"`
	Video     *VideoConfig     `json:"video,omitempty"`
	Schedules []ScheduleConfig `json:"schedules"`
}

// FilterConfig is the on-disk shape of a time filter. Dates use "2006-01-02".
type FilterConfig struct {
	Span    string   `json:"span,omitempty"` // all|date|range|dates, default all
	Date    string   `json:"date,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Dates   []string `json:"dates,omitempty"`
	Hours   string   `json:"hours,omitempty"`
	Minutes string   `json:"minutes,omitempty"`
	Mode    string   `json:"mode,omitempty"` // exact|nearest, default nearest
	Window  string   `json:"window,omitempty"`
}

const dateLayout = "2006-01-02"

// Spec builds and validates the filter spec this block describes.
func (f FilterConfig) Spec() (timefilter.Spec, error) {
	spec := timefilter.Spec{
		Hours:   f.Hours,
		Minutes: f.Minutes,
		Mode:    timefilter.ModeNearest,
	}
	switch strings.ToLower(strings.TrimSpace(f.Mode)) {
	case "", "nearest":
	case "exact":
		spec.Mode = timefilter.ModeExact
	default:
		return timefilter.Spec{}, fmt.Errorf("unknown filter mode %q", f.Mode)
	}

	switch strings.ToLower(strings.TrimSpace(f.Span)) {
	case "", "all":
		spec.Span.Kind = timefilter.SpanAll
	case "date":
		spec.Span.Kind = timefilter.SpanDate
		d, err := time.ParseInLocation(dateLayout, f.Date, time.Local)
		if err != nil {
			return timefilter.Spec{}, fmt.Errorf("date: %w", err)
		}
		spec.Span.Date = d
	case "range":
		spec.Span.Kind = timefilter.SpanRange
		if strings.TrimSpace(f.From) != "" {
			d, err := time.ParseInLocation(dateLayout, f.From, time.Local)
			if err != nil {
				return timefilter.Spec{}, fmt.Errorf("from: %w", err)
			}
			spec.Span.From = d
		}
		if strings.TrimSpace(f.To) != "" {
			d, err := time.ParseInLocation(dateLayout, f.To, time.Local)
			if err != nil {
				return timefilter.Spec{}, fmt.Errorf("to: %w", err)
			}
			spec.Span.To = d
		}
	case "dates":
		spec.Span.Kind = timefilter.SpanDates
		for _, raw := range f.Dates {
			d, err := time.ParseInLocation(dateLayout, raw, time.Local)
			if err != nil {
				return timefilter.Spec{}, fmt.Errorf("dates: %w", err)
			}
			spec.Span.Dates = append(spec.Span.Dates, d)
		}
	default:
		return timefilter.Spec{}, fmt.Errorf("unknown filter span %q", f.Span)
	}

	if strings.TrimSpace(f.Window) != "" {
		w, err := ParseDurationField("filter.window", f.Window)
		if err != nil {
			return timefilter.Spec{}, err
		}
		spec.Window = w
	}

	if err := spec.Validate(); err != nil {
		return timefilter.Spec{}, err
	}
	return spec, nil
}

type VideoConfig struct {
	Path   string `json:"path"`
	FPS    int    `json:"fps,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Codec  string `json:"codec,omitempty"`
}

// Validate checks the whole document so a bad edit is rejected before it
// reaches the scheduler.
func (c *Config) Validate() error {
	if _, err := ParseDurationField("manager.retention", c.Manager.Retention); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.tick", c.Scheduler.Tick); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	names := map[string]bool{}
	for i, cam := range c.Cameras {
		if strings.TrimSpace(cam.Name) == "" {
			return fmt.Errorf("cameras[%d]: name is required", i)
		}
		if names["cam:"+cam.Name] {
			return fmt.Errorf("cameras[%d]: duplicate name %q", i, cam.Name)
		}
		names["cam:"+cam.Name] = true
		if strings.TrimSpace(cam.Source) == "" {
			return fmt.Errorf("camera %q: source is required", cam.Name)
		}
		if strings.TrimSpace(cam.OutputDir) == "" {
			return fmt.Errorf("camera %q: output_dir is required", cam.Name)
		}
		for j, sc := range cam.Schedules {
			if _, err := sc.Expression(); err != nil {
				return fmt.Errorf("camera %q schedules[%d]: %w", cam.Name, j, err)
			}
		}
	}
	for i, exp := range c.Exports {
		if strings.TrimSpace(exp.Name) == "" {
			return fmt.Errorf("exports[%d]: name is required", i)
		}
		if names["exp:"+exp.Name] {
			return fmt.Errorf("exports[%d]: duplicate name %q", i, exp.Name)
		}
		names["exp:"+exp.Name] = true
		if strings.TrimSpace(exp.InputDir) == "" || strings.TrimSpace(exp.OutputDir) == "" {
			return fmt.Errorf("export %q: input_dir and output_dir are required", exp.Name)
		}
		if _, err := exp.Filter.Spec(); err != nil {
			return fmt.Errorf("export %q filter: %w", exp.Name, err)
		}
		for j, sc := range exp.Schedules {
			if _, err := sc.Expression(); err != nil {
				return fmt.Errorf("export %q schedules[%d]: %w", exp.Name, j, err)
			}
		}
	}
	return nil
}
