package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Config carries connection settings for the selected driver. DSN, when set,
// wins over the individual fields.
type Config struct {
	Driver   string
	Path     string // SQLite file path
	DSN      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

// Open connects to the configured database. SQLite is the default driver.
func Open(cfg Config) (*gorm.DB, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite":
		return openSQLite(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("database: unknown driver %q", cfg.Driver)
	}
}

// Migrate brings the schema up to date for an open handle.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("database: nil handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// sortedOptions merges overrides into defaults and returns "k=v" pairs in a
// stable order, so generated DSNs are deterministic.
func sortedOptions(defaults, overrides map[string]string) []string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+merged[k])
	}
	return pairs
}
