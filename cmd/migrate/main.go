// Package main applies or reverts the ledger schema for the configured
// SQL backend.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/migration"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/postgres"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	storage := flag.String("storage", "", "backend to migrate: postgres or sqlite (default: ledger.storage)")
	direction := flag.String("direction", "up", "up, down or version")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *storage == "" {
		*storage = cfg.Ledger.Storage
	}

	m, err := open(*storage, cfg)
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer func() { _ = m.Close() }()

	switch *direction {
	case "up":
		err = m.Up(*steps)
	case "down":
		err = m.Down(*steps)
	case "version":
	default:
		log.Fatalf("invalid direction %q: must be up, down or version", *direction)
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalf("reading schema version: %v", err)
	}
	fmt.Fprintf(os.Stdout, "%s %s: version=%d dirty=%v [%s]\n", *storage, *direction, version, dirty, time.Since(start))
}

func open(storage string, cfg config.Config) (*migration.Migrator, error) {
	switch storage {
	case config.StoragePostgres:
		return postgres.NewMigrator(cfg.Database.DSN())
	case config.StorageSQLite:
		return sqlite.NewMigrator(cfg.Ledger.SQLitePath)
	default:
		return nil, fmt.Errorf("storage %q has no schema to migrate", storage)
	}
}
