package job

import "context"

// FetchFunc grabs one image from a camera source (URL, device path). The
// core never looks inside the bytes; decode/resize belongs to the caller's
// implementation.
type FetchFunc func(ctx context.Context, source string) ([]byte, error)

// RenderOptions is handed opaquely to the encoder.
type RenderOptions struct {
	FPS     int    // frames per second, default 25
	Width   int    // 0 keeps source width
	Height  int    // 0 keeps source height
	Codec   string // encoder-specific, e.g. "libx264"
	Pattern string // input filename pattern, e.g. "frame_%05d.jpg"
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.FPS <= 0 {
		o.FPS = 25
	}
	return o
}

// EncodeFunc turns a directory of frames into a video file. A non-zero exit
// of the underlying encoder surfaces as an error.
type EncodeFunc func(ctx context.Context, inputDir, outputPath string, opt RenderOptions) error
