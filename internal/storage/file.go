package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "lapsed/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.captures.jsonl (append-only JSON Lines)
//   - <prefix>.exports.jsonl  (append-only JSON Lines)
//
// Appends go to the file and to a bounded in-memory tail; the files are
// periodically compacted down to the retained tail via tmp + rename.
type fileStore struct {
	log  logx.Logger
	keep int

	mu sync.Mutex

	capPath string
	capFile *os.File
	caps    []CaptureEntry

	expPath string
	expFile *os.File
	exps    []ExportEntry

	writes int
}

const compactEvery = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:     log,
		keep:    cfg.keep(),
		capPath: prefix + ".captures.jsonl",
		expPath: prefix + ".exports.jsonl",
	}

	_ = readLines(s.capPath, func(b []byte) {
		var e CaptureEntry
		if json.Unmarshal(b, &e) == nil && e.Camera != "" {
			s.caps = append(s.caps, e)
		}
	})
	_ = readLines(s.expPath, func(b []byte) {
		var e ExportEntry
		if json.Unmarshal(b, &e) == nil && e.Name != "" {
			s.exps = append(s.exps, e)
		}
	})
	s.caps = tail(s.caps, s.keep)
	s.exps = tail(s.exps, s.keep)

	var err error
	if s.capFile, err = os.OpenFile(s.capPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		return nil, err
	}
	if s.expFile, err = os.OpenFile(s.expPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		_ = s.capFile.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.compactLocked()
	var err1, err2 error
	if s.capFile != nil {
		err1 = s.capFile.Close()
		s.capFile = nil
	}
	if s.expFile != nil {
		err2 = s.expFile.Close()
		s.expFile = nil
	}
	if err != nil {
		return err
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendCapture(ctx context.Context, e CaptureEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capFile == nil {
		return errors.New("capture history closed")
	}
	if err := json.NewEncoder(s.capFile).Encode(e); err != nil {
		return err
	}
	s.caps = tail(append(s.caps, e), s.keep)
	return s.bumpLocked()
}

func (s *fileStore) AppendExport(ctx context.Context, e ExportEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expFile == nil {
		return errors.New("export history closed")
	}
	if err := json.NewEncoder(s.expFile).Encode(e); err != nil {
		return err
	}
	s.exps = tail(append(s.exps, e), s.keep)
	return s.bumpLocked()
}

func (s *fileStore) RecentCaptures(ctx context.Context, camera string, n int) ([]CaptureEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CaptureEntry, 0, n)
	for i := len(s.caps) - 1; i >= 0; i-- {
		if camera != "" && s.caps[i].Camera != camera {
			continue
		}
		out = append(out, s.caps[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *fileStore) RecentExports(ctx context.Context, name string, n int) ([]ExportEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExportEntry, 0, n)
	for i := len(s.exps) - 1; i >= 0; i-- {
		if name != "" && s.exps[i].Name != name {
			continue
		}
		out = append(out, s.exps[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *fileStore) bumpLocked() error {
	s.writes++
	if s.writes%compactEvery != 0 {
		return nil
	}
	// Best-effort compact.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("history compact failed", logx.Err(err))
	}
	return nil
}

// compactLocked rewrites both files down to the retained tail.
func (s *fileStore) compactLocked() error {
	if s.capFile != nil {
		nf, err := rewriteJSONL(s.capPath, s.capFile, func(enc *json.Encoder) error {
			for _, e := range s.caps {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.capFile = nf
	}
	if s.expFile != nil {
		nf, err := rewriteJSONL(s.expPath, s.expFile, func(enc *json.Encoder) error {
			for _, e := range s.exps {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.expFile = nf
	}
	return nil
}

// rewriteJSONL writes the retained entries to <path>.tmp and renames it over
// path. The rename replaces the inode, so the old append handle is closed and
// a fresh one returned.
func rewriteJSONL(path string, old *os.File, write func(*json.Encoder) error) (*os.File, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return old, err
	}
	if err := write(json.NewEncoder(f)); err != nil {
		_ = f.Close()
		return old, err
	}
	if err := f.Close(); err != nil {
		return old, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return old, err
	}
	_ = old.Close()
	return os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
}

func readLines(path string, fn func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return sc.Err()
}

func tail[T any](in []T, keep int) []T {
	if len(in) <= keep {
		return in
	}
	out := make([]T, keep)
	copy(out, in[len(in)-keep:])
	return out
}
