package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"impactwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	cfg Config

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

	st := &sqliteStore{db: db, log: log, cfg: cfg, pruneEvery: 50}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
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

func (s *sqliteStore) SaveSnapshot(ctx context.Context, day string, blob []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := validDay(day); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(day, blob, updated_at) VALUES(?,?,?)
		 ON CONFLICT(day) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at`,
		day, blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE day NOT IN (SELECT day FROM snapshots ORDER BY day DESC LIMIT ?)`,
		s.cfg.keepDays(),
	)
	return err
}

func (s *sqliteStore) LoadSnapshot(ctx context.Context, day string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	if err := validDay(day); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM snapshots WHERE day = ?`, day).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *sqliteStore) LatestSnapshot(ctx context.Context) (string, []byte, bool, error) {
	if s == nil || s.db == nil {
		return "", nil, false, ErrDisabled
	}
	var (
		day  string
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT day, blob FROM snapshots ORDER BY day DESC LIMIT 1`).Scan(&day, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	return day, blob, true, nil
}

func (s *sqliteStore) AppendPublished(ctx context.Context, r PublishRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	ch, err := json.Marshal(r.Channels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO published(at, event_id, title, channels, fallback, artifact) VALUES(?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.EventID, nullStr(r.Title), string(ch), boolInt(r.Fallback), boolInt(r.Artifact),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneJournal(pctx); perr != nil {
			s.log.Debug("journal prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentPublished(ctx context.Context, n int) ([]PublishRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = s.cfg.journalKeep()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, event_id, COALESCE(title, ''), channels, fallback, artifact
		 FROM published ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PublishRecord
	for rows.Next() {
		var (
			r                  PublishRecord
			at, channels       string
			fallback, artifact int
		)
		if err := rows.Scan(&at, &r.EventID, &r.Title, &channels, &fallback, &artifact); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		_ = json.Unmarshal([]byte(channels), &r.Channels)
		r.Fallback = fallback != 0
		r.Artifact = artifact != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneJournal(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM published WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM published) - ?`,
		s.cfg.journalKeep(),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
