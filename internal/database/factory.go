package database

import (
	"fmt"
	"os"
	"path/filepath"

	"funes/internal/config"
	"funes/internal/funes"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// The schema is migrated to the latest version. Type "none" returns a nil Database,
// which disables run history.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string) (funes.Database, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if hostID == "" {
			hostID = "local"
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, hostID+".db")
	case "memory":
		path = ":memory:"
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}
