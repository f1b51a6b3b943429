package job

import (
	"context"
	"fmt"
	"path/filepath"

	"lapsed/internal/task"
	logx "lapsed/pkg/logx"
)

// RenderSpec describes a standalone render of an already-exported frame dir.
type RenderSpec struct {
	Name       string
	InputDir   string
	OutputPath string
	Options    RenderOptions
}

// Render builds the job body that hands a frame directory to the encoder.
// The encode call is one opaque unit of work; cancellation is only observed
// before it starts.
func Render(encode EncodeFunc, spec RenderSpec, log logx.Logger) task.JobFunc {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context, p task.Progress) error {
		if encode == nil {
			return fmt.Errorf("no encoder configured")
		}
		if p.Cancelled() {
			return task.ErrCancelled
		}

		p.Report(0, 1, "encoding "+filepath.Base(spec.OutputPath))
		if err := encode(ctx, spec.InputDir, spec.OutputPath, spec.Options.withDefaults()); err != nil {
			return fmt.Errorf("encode %s: %w", spec.OutputPath, err)
		}
		p.Report(1, 1, "encoded "+filepath.Base(spec.OutputPath))
		log.Info("render finished",
			logx.String("render", spec.Name),
			logx.String("output", spec.OutputPath))
		return nil
	}
}
