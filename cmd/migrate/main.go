// Package main applies the embedded goose migrations to DATABASE_URL.
// Usage: scout-migrate <up|down|status|version|reset>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"scout-alerts/internal/infra/db"
	"scout-alerts/internal/observability/logging"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: scout-migrate <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  down        Roll back one version")
	fmt.Fprintln(os.Stderr, "  status      Show migration status")
	fmt.Fprintln(os.Stderr, "  version     Show current version")
	fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "The database is read from DATABASE_URL.")
}

func main() {
	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	database, err := db.Open(context.Background())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	switch cmd {
	case "up":
		err = db.MigrateUp(database)
	case "down":
		err = db.MigrateDown(database)
	case "status":
		err = db.MigrationStatus(database)
	case "version":
		var v int64
		if v, err = db.MigrationVersion(database); err == nil {
			fmt.Println(v)
		}
	case "reset":
		err = db.MigrateReset(database)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("migration command failed", slog.String("command", cmd), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migration command finished", slog.String("command", cmd))
}
