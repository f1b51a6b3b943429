package job

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"lapsed/internal/storage"
	"lapsed/internal/task"
	logx "lapsed/pkg/logx"
)

// stampLayout names capture files so an export can recover the shot time
// from the filename alone.
const stampLayout = "20060102_150405"

// CaptureSpec describes one camera capture.
type CaptureSpec struct {
	Camera    string
	Source    string
	OutputDir string
	Prefix    string // filename prefix, default "img_"
	Ext       string // without dot, default "jpg"
}

func (s CaptureSpec) prefix() string {
	if s.Prefix == "" {
		return "img_"
	}
	return s.Prefix
}

func (s CaptureSpec) ext() string {
	if s.Ext == "" {
		return "jpg"
	}
	return strings.TrimPrefix(s.Ext, ".")
}

// Capture builds the job body for one camera shot: fetch, write
// <prefix><stamp>.<ext> into the output dir, append history. History is
// best-effort; a history write failure never fails a capture that produced
// its image.
func Capture(fs afero.Fs, fetch FetchFunc, store storage.Store, spec CaptureSpec, log logx.Logger) task.JobFunc {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context, p task.Progress) error {
		shotAt := time.Now()
		p.Report(0, 1, "fetching "+spec.Source)

		data, err := fetch(ctx, spec.Source)
		if err != nil {
			appendCapture(ctx, store, log, storage.CaptureEntry{
				Camera: spec.Camera, At: shotAt, Error: err.Error(),
			})
			return fmt.Errorf("fetch %s: %w", spec.Source, err)
		}

		name := fmt.Sprintf("%s%s.%s", spec.prefix(), shotAt.Format(stampLayout), spec.ext())
		path := filepath.Join(spec.OutputDir, name)
		if err := fs.MkdirAll(spec.OutputDir, 0o755); err != nil {
			return fmt.Errorf("prepare %s: %w", spec.OutputDir, err)
		}
		if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
			appendCapture(ctx, store, log, storage.CaptureEntry{
				Camera: spec.Camera, At: shotAt, Error: err.Error(),
			})
			return fmt.Errorf("write %s: %w", path, err)
		}

		p.Report(1, 1, "saved "+name)
		appendCapture(ctx, store, log, storage.CaptureEntry{
			Camera: spec.Camera, At: shotAt, OK: true, Path: path, Bytes: int64(len(data)),
		})
		return nil
	}
}

func appendCapture(ctx context.Context, store storage.Store, log logx.Logger, e storage.CaptureEntry) {
	if store == nil {
		return
	}
	if err := store.AppendCapture(ctx, e); err != nil {
		log.Warn("capture history write failed",
			logx.String("camera", e.Camera), logx.Err(err))
	}
}
