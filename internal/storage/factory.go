package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/knc/pkg/models"
)

// NewKVStore builds the backend selected by cfg. Relative file and sqlite
// paths resolve against basePath.
func NewKVStore(basePath string, cfg models.StorageConfig) (KVStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileKVStore(resolve(basePath, cfg.Dir)), nil
	case "memory":
		return NewMemoryKVStore(), nil
	case "redis":
		return NewRedisKVStore(cfg.Redis)
	case "sql":
		sqlCfg := cfg.SQL
		if sqlCfg.Driver == "sqlite" && sqlCfg.DSN != ":memory:" {
			sqlCfg.DSN = resolve(basePath, sqlCfg.DSN)
			if err := os.MkdirAll(filepath.Dir(sqlCfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		return NewSQLKVStore(sqlCfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func resolve(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}
