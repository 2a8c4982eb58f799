package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
	ErrBadDay   = errors.New("invalid snapshot day")
)

// DayLayout is the snapshot key format.
const DayLayout = "2006-01-02"

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per day plus a JSON Lines journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// KeepDays bounds how many daily snapshots are retained.
	KeepDays int
	// JournalKeep bounds how many published records are retained.
	JournalKeep int
}

// PublishRecord is one journal line: an item that reached its channels.
type PublishRecord struct {
	At       time.Time `json:"at"`
	EventID  string    `json:"event_id"`
	Title    string    `json:"title"`
	Channels []string  `json:"channels"`
	Fallback bool      `json:"fallback,omitempty"`
	Artifact bool      `json:"artifact,omitempty"`
}

// Store is the persistence API used by the app.
type Store interface {
	SaveSnapshot(ctx context.Context, day string, blob []byte) error
	LoadSnapshot(ctx context.Context, day string) ([]byte, bool, error)
	// LatestSnapshot returns the most recent day's snapshot.
	LatestSnapshot(ctx context.Context) (day string, blob []byte, ok bool, err error)

	AppendPublished(ctx context.Context, r PublishRecord) error
	// RecentPublished returns up to n records, newest first.
	RecentPublished(ctx context.Context, n int) ([]PublishRecord, error)

	Close() error
}

func validDay(day string) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return errors.Join(ErrBadDay, err)
	}
	return nil
}

func (c Config) keepDays() int {
	if c.KeepDays <= 0 {
		return 7
	}
	return c.KeepDays
}

func (c Config) journalKeep() int {
	if c.JournalKeep <= 0 {
		return 500
	}
	return c.JournalKeep
}
