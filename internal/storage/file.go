package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"impactwatch/pkg/logx"
)

// fileStore keeps everything next to the configured path.
//
// Files:
//   - <prefix>.<YYYY-MM-DD>.snapshot.json (one per day, replaced atomically)
//   - <prefix>.journal.jsonl               (append-only JSON Lines)
//
// The journal is compacted to the newest JournalKeep records once it grows
// to twice that size.
type fileStore struct {
	log    logx.Logger
	prefix string
	cfg    Config

	mu          sync.Mutex
	journalPath string
	journal     *os.File
	recent      []PublishRecord // oldest first, at most journalKeep
	lines       int
}

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
		log:         log,
		prefix:      prefix,
		cfg:         cfg,
		journalPath: prefix + ".journal.jsonl",
	}
	lines, err := readJournal(s.journalPath, func(r PublishRecord) { s.push(r) })
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay failed", logx.String("path", s.journalPath), logx.Err(err))
	}
	s.lines = lines

	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) snapshotPath(day string) string {
	return s.prefix + "." + day + ".snapshot.json"
}

func (s *fileStore) SaveSnapshot(ctx context.Context, day string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validDay(day); err != nil {
		return err
	}
	if !json.Valid(blob) {
		return errors.New("snapshot is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := writeAtomic(s.snapshotPath(day), blob); err != nil {
		return err
	}
	s.pruneSnapshotsLocked()
	return nil
}

func (s *fileStore) LoadSnapshot(ctx context.Context, day string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := validDay(day); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.snapshotPath(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) LatestSnapshot(ctx context.Context) (string, []byte, bool, error) {
	days, err := s.snapshotDays()
	if err != nil {
		return "", nil, false, err
	}
	for i := len(days) - 1; i >= 0; i-- {
		b, ok, err := s.LoadSnapshot(ctx, days[i])
		if err != nil {
			return "", nil, false, err
		}
		if ok {
			return days[i], b, true, nil
		}
	}
	return "", nil, false, nil
}

// snapshotDays lists days with a snapshot file, oldest first.
func (s *fileStore) snapshotDays() ([]string, error) {
	matches, err := filepath.Glob(s.prefix + ".*.snapshot.json")
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(matches))
	head := filepath.Base(s.prefix) + "."
	for _, m := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), head), ".snapshot.json")
		if validDay(day) == nil {
			days = append(days, day)
		}
	}
	sort.Strings(days)
	return days, nil
}

func (s *fileStore) pruneSnapshotsLocked() {
	days, err := s.snapshotDays()
	if err != nil {
		return
	}
	for len(days) > s.cfg.keepDays() {
		if err := os.Remove(s.snapshotPath(days[0])); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Debug("snapshot prune failed", logx.String("day", days[0]), logx.Err(err))
		}
		days = days[1:]
	}
}

func (s *fileStore) AppendPublished(ctx context.Context, r PublishRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.push(r)
	s.lines++
	if s.lines >= 2*s.cfg.journalKeep() {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentPublished(ctx context.Context, n int) ([]PublishRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]PublishRecord, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) push(r PublishRecord) {
	s.recent = append(s.recent, r)
	if over := len(s.recent) - s.cfg.journalKeep(); over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

func (s *fileStore) compactLocked() error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, r := range s.recent {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if err := writeAtomic(s.journalPath, []byte(buf.String())); err != nil {
		return err
	}
	_ = s.journal.Close()
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.journal = nil
		return err
	}
	s.journal = jf
	s.lines = len(s.recent)
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readJournal(path string, fn func(PublishRecord)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r PublishRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.EventID == "" {
			continue
		}
		fn(r)
		n++
	}
	return n, sc.Err()
}
