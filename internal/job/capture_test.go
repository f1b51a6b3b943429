package job

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	logx "lapsed/pkg/logx"
)

func TestCaptureWritesImageAndHistory(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	store := &memStore{}
	fetch := func(ctx context.Context, source string) ([]byte, error) {
		if source != "http://cam-1/snap" {
			t.Fatalf("fetch called with %q", source)
		}
		return []byte("jpeg-bytes"), nil
	}

	body := Capture(fs, fetch, store, CaptureSpec{
		Camera:    "cam-1",
		Source:    "http://cam-1/snap",
		OutputDir: "/data/cam-1",
	}, logx.Nop())

	if err := body(context.Background(), &fakeProgress{}); err != nil {
		t.Fatalf("capture error: %v", err)
	}

	infos, err := afero.ReadDir(fs, "/data/cam-1")
	if err != nil || len(infos) != 1 {
		t.Fatalf("output dir: %v entries, err %v", len(infos), err)
	}
	if _, ok := stampFromName(infos[0].Name()); !ok {
		t.Fatalf("output name %q carries no parsable stamp", infos[0].Name())
	}

	if len(store.caps) != 1 {
		t.Fatalf("history entries = %d, want 1", len(store.caps))
	}
	e := store.caps[0]
	if !e.OK || e.Camera != "cam-1" || e.Bytes != int64(len("jpeg-bytes")) {
		t.Fatalf("unexpected history entry %+v", e)
	}
}

func TestCaptureFetchFailureRecorded(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	store := &memStore{}
	fetch := func(ctx context.Context, source string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}

	body := Capture(fs, fetch, store, CaptureSpec{
		Camera:    "cam-1",
		Source:    "http://cam-1/snap",
		OutputDir: "/data/cam-1",
	}, logx.Nop())

	if err := body(context.Background(), &fakeProgress{}); err == nil {
		t.Fatal("expected fetch error")
	}

	if len(store.caps) != 1 || store.caps[0].OK || store.caps[0].Error == "" {
		t.Fatalf("unexpected history %+v", store.caps)
	}
	if exists, _ := afero.DirExists(fs, "/data/cam-1"); exists {
		t.Fatal("failed fetch must not create output")
	}
}

func TestRenderRequiresEncoder(t *testing.T) {
	t.Parallel()
	body := Render(nil, RenderSpec{Name: "r", InputDir: "/in", OutputPath: "/out.mp4"}, logx.Nop())
	if err := body(context.Background(), &fakeProgress{}); err == nil {
		t.Fatal("expected error without encoder")
	}
}

func TestRenderInvokesEncoder(t *testing.T) {
	t.Parallel()
	var gotOpt RenderOptions
	encode := func(ctx context.Context, inputDir, outputPath string, opt RenderOptions) error {
		gotOpt = opt
		return nil
	}
	body := Render(encode, RenderSpec{
		Name:       "r",
		InputDir:   "/frames",
		OutputPath: "/out.mp4",
		Options:    RenderOptions{FPS: 30, Codec: "libx264"},
	}, logx.Nop())

	if err := body(context.Background(), &fakeProgress{}); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if gotOpt.FPS != 30 || gotOpt.Codec != "libx264" {
		t.Fatalf("options not passed through: %+v", gotOpt)
	}
}
