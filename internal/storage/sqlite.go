package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "lapsed/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, keep: cfg.keep(), pruneEvery: 100}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendCapture(ctx context.Context, e CaptureEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures(camera, at, ok, path, bytes, err)
		 VALUES(?,?,?,?,?,?)`,
		e.Camera, e.At.Format(time.RFC3339Nano), boolInt(e.OK),
		nullStr(e.Path), e.Bytes, nullStr(e.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		s.prune(pctx, "captures", "camera")
		cancel()
	}
	return err
}

func (s *sqliteStore) AppendExport(ctx context.Context, e ExportEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports(name, at, input_dir, output_dir, images, video_path, err)
		 VALUES(?,?,?,?,?,?,?)`,
		e.Name, e.At.Format(time.RFC3339Nano), e.InputDir, e.OutputDir, e.Images,
		nullStr(e.VideoPath), nullStr(e.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		s.prune(pctx, "exports", "name")
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentCaptures(ctx context.Context, camera string, n int) ([]CaptureEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = s.keep
	}
	q := `SELECT camera, at, ok, COALESCE(path,''), bytes, COALESCE(err,'')
	      FROM captures`
	args := []any{}
	if camera != "" {
		q += ` WHERE camera = ?`
		args = append(args, camera)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaptureEntry
	for rows.Next() {
		var e CaptureEntry
		var at string
		var ok int
		if err := rows.Scan(&e.Camera, &at, &ok, &e.Path, &e.Bytes, &e.Error); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.OK = ok != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecentExports(ctx context.Context, name string, n int) ([]ExportEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = s.keep
	}
	q := `SELECT name, at, input_dir, output_dir, images, COALESCE(video_path,''), COALESCE(err,'')
	      FROM exports`
	args := []any{}
	if name != "" {
		q += ` WHERE name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportEntry
	for rows.Next() {
		var e ExportEntry
		var at string
		if err := rows.Scan(&e.Name, &at, &e.InputDir, &e.OutputDir, &e.Images, &e.VideoPath, &e.Error); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// prune keeps the newest s.keep rows per subject in the given table.
func (s *sqliteStore) prune(ctx context.Context, table, subjectCol string) {
	q := fmt.Sprintf(
		`DELETE FROM %s WHERE id NOT IN (
		   SELECT id FROM %s t2 WHERE t2.%s = %s.%s ORDER BY t2.id DESC LIMIT ?
		 )`, table, table, subjectCol, table, subjectCol)
	if _, err := s.db.ExecContext(ctx, q, s.keep); err != nil {
		s.log.Debug("history prune failed", logx.String("table", table), logx.Err(err))
	}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
