package job

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"lapsed/internal/storage"
	"lapsed/internal/task"
	"lapsed/internal/timefilter"
	logx "lapsed/pkg/logx"
)

// ExportSpec describes one filtered export run.
type ExportSpec struct {
	Name      string
	InputDir  string
	OutputDir string
	Prefix    string // output filename prefix, default "frame_"
	Filter    timefilter.Spec

	// VideoPath chains a render after the copy phase; empty skips it.
	VideoPath string
	Render    RenderOptions
}

func (s ExportSpec) prefix() string {
	if s.Prefix == "" {
		return "frame_"
	}
	return s.Prefix
}

// Export builds the job body that scans the input dir, runs the time filter
// over the timestamped images, and copies the selection into the output dir
// as <prefix><seq>.<ext> with zero-padded sequence numbers. Cancellation is
// checked at every item boundary; partial output stays in place.
func Export(fs afero.Fs, encode EncodeFunc, store storage.Store, spec ExportSpec, log logx.Logger) task.JobFunc {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context, p task.Progress) error {
		startedAt := time.Now()
		if err := spec.Filter.Validate(); err != nil {
			return fmt.Errorf("filter: %w", err)
		}

		p.Report(0, 0, "scanning "+spec.InputDir)
		items, err := scanImages(fs, spec.InputDir)
		if err != nil {
			return fmt.Errorf("scan %s: %w", spec.InputDir, err)
		}

		selected, err := timefilter.Select(items, spec.Filter)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		log.Debug("export selection",
			logx.String("export", spec.Name),
			logx.Int("scanned", len(items)),
			logx.Int("selected", len(selected)))

		if err := fs.MkdirAll(spec.OutputDir, 0o755); err != nil {
			return fmt.Errorf("prepare %s: %w", spec.OutputDir, err)
		}

		total := int64(len(selected))
		for i, it := range selected {
			if p.Cancelled() {
				return task.ErrCancelled
			}
			dst := filepath.Join(spec.OutputDir, fmt.Sprintf("%s%05d%s",
				spec.prefix(), i, filepath.Ext(it.Path)))
			if err := copyFile(fs, it.Path, dst); err != nil {
				appendExport(ctx, store, log, storage.ExportEntry{
					Name: spec.Name, At: startedAt, InputDir: spec.InputDir,
					OutputDir: spec.OutputDir, Images: i, Error: err.Error(),
				})
				return fmt.Errorf("copy %s: %w", it.Path, err)
			}
			p.Report(int64(i+1), total, "copied "+filepath.Base(dst))
		}

		entry := storage.ExportEntry{
			Name: spec.Name, At: startedAt, InputDir: spec.InputDir,
			OutputDir: spec.OutputDir, Images: len(selected),
		}

		if spec.VideoPath != "" && encode != nil {
			if p.Cancelled() {
				return task.ErrCancelled
			}
			p.Report(total, total, "encoding "+filepath.Base(spec.VideoPath))
			if err := encode(ctx, spec.OutputDir, spec.VideoPath, spec.Render.withDefaults()); err != nil {
				entry.Error = err.Error()
				appendExport(ctx, store, log, entry)
				return fmt.Errorf("encode %s: %w", spec.VideoPath, err)
			}
			entry.VideoPath = spec.VideoPath
		}

		appendExport(ctx, store, log, entry)
		return nil
	}
}

// scanImages lists the input dir and keeps files whose names carry a
// parsable timestamp, ordered by that timestamp.
func scanImages(fs afero.Fs, dir string) ([]timefilter.Item, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	items := make([]timefilter.Item, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		when, ok := stampFromName(fi.Name())
		if !ok {
			continue
		}
		items = append(items, timefilter.Item{
			When: when,
			Path: filepath.Join(dir, fi.Name()),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].When.Before(items[j].When) })
	return items, nil
}

// stampFromName recovers the shot time from a capture filename. The stamp is
// the trailing fixed-width "20060102_150405" block before the extension, so
// any prefix works.
func stampFromName(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) < len(stampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(stampLayout, base[len(base)-len(stampLayout):], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, 0o644)
}

func appendExport(ctx context.Context, store storage.Store, log logx.Logger, e storage.ExportEntry) {
	if store == nil {
		return
	}
	if err := store.AppendExport(ctx, e); err != nil {
		log.Warn("export history write failed",
			logx.String("export", e.Name), logx.Err(err))
	}
}
