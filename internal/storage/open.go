package storage

import (
	"fmt"
	"strings"

	"impactwatch/pkg/logx"
)

// Open returns the store for cfg.Driver, or (nil, nil) for "" and "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", d)
	}
}
