package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "lapsed/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(disabled) = (%v, %v), want (nil, nil)", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := st.AppendCapture(ctx, CaptureEntry{
			Camera: "cam-1",
			At:     base.Add(time.Duration(i) * time.Minute),
			OK:     true,
			Path:   fmt.Sprintf("/data/cam-1/img%03d.jpg", i),
			Bytes:  1024,
		})
		if err != nil {
			t.Fatalf("AppendCapture error: %v", err)
		}
	}
	if err := st.AppendExport(ctx, ExportEntry{
		Name: "daily", At: base, InputDir: "/data/cam-1", OutputDir: "/out", Images: 3,
	}); err != nil {
		t.Fatalf("AppendExport error: %v", err)
	}

	caps, err := st.RecentCaptures(ctx, "cam-1", 2)
	if err != nil {
		t.Fatalf("RecentCaptures error: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("got %d captures, want 2", len(caps))
	}
	if !caps[0].At.After(caps[1].At) {
		t.Fatal("captures not newest-first")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Reopen: entries survive.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer st.Close()

	caps, err = st.RecentCaptures(ctx, "cam-1", 0)
	if err != nil {
		t.Fatalf("RecentCaptures after reopen error: %v", err)
	}
	if len(caps) != 3 {
		t.Fatalf("got %d captures after reopen, want 3", len(caps))
	}
	exps, err := st.RecentExports(ctx, "daily", 0)
	if err != nil {
		t.Fatalf("RecentExports error: %v", err)
	}
	if len(exps) != 1 || exps[0].Images != 3 {
		t.Fatalf("unexpected exports %+v", exps)
	}
}

func TestFileStoreBoundedRetention(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path, Keep: 5}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		err := st.AppendCapture(ctx, CaptureEntry{
			Camera: "cam-1", At: base.Add(time.Duration(i) * time.Second), OK: true,
		})
		if err != nil {
			t.Fatalf("AppendCapture error: %v", err)
		}
	}

	caps, err := st.RecentCaptures(ctx, "cam-1", 0)
	if err != nil {
		t.Fatalf("RecentCaptures error: %v", err)
	}
	if len(caps) != 5 {
		t.Fatalf("retained %d entries, want 5", len(caps))
	}
	// Newest survives.
	if want := base.Add(19 * time.Second); !caps[0].At.Equal(want) {
		t.Fatalf("newest = %v, want %v", caps[0].At, want)
	}
}

func TestFileStoreFiltersBySubject(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	for _, cam := range []string{"cam-1", "cam-2", "cam-1"} {
		if err := st.AppendCapture(ctx, CaptureEntry{Camera: cam, At: time.Now(), OK: true}); err != nil {
			t.Fatalf("AppendCapture error: %v", err)
		}
	}

	caps, err := st.RecentCaptures(ctx, "cam-2", 0)
	if err != nil {
		t.Fatalf("RecentCaptures error: %v", err)
	}
	if len(caps) != 1 || caps[0].Camera != "cam-2" {
		t.Fatalf("unexpected filter result %+v", caps)
	}
}
