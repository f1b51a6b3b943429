package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lapsed/internal/job"
)

// httpFetch is the reference camera fetch: one GET per shot.
func httpFetch() job.FetchFunc {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context, source string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		// Cameras serve single frames; cap the read to keep a misbehaving
		// endpoint from exhausting memory.
		return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	}
}

// ffmpegEncode is the reference encoder: an external ffmpeg invocation over
// the exported frame sequence.
func ffmpegEncode(bin string) job.EncodeFunc {
	return func(ctx context.Context, inputDir, outputPath string, opt job.RenderOptions) error {
		pattern := opt.Pattern
		if pattern == "" {
			pattern = "frame_%05d.jpg"
		}
		codec := opt.Codec
		if codec == "" {
			codec = "libx264"
		}

		args := []string{
			"-y",
			"-framerate", fmt.Sprint(opt.FPS),
			"-i", filepath.Join(inputDir, pattern),
			"-c:v", codec,
			"-pix_fmt", "yuv420p",
		}
		if opt.Width > 0 && opt.Height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", opt.Width, opt.Height))
		}
		args = append(args, outputPath)

		cmd := exec.CommandContext(ctx, bin, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			tail := string(out)
			if len(tail) > 512 {
				tail = tail[len(tail)-512:]
			}
			return fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(tail))
		}
		return nil
	}
}
