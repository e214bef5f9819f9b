package storage

import (
	"fmt"
	"strings"

	"tpmb/pkg/logx"
)

// Open selects and initializes a driver. An unknown driver name is a
// configuration error, not a silent fallback.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 500
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
