package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Impto-dev/license-bot/internal/backup"
	"github.com/Impto-dev/license-bot/internal/config"
	"github.com/Impto-dev/license-bot/internal/infrastructure"
	"github.com/Impto-dev/license-bot/internal/storage/sqlite"
)

func main() {
	action := flag.String("action", "list", "backup action: create | list | restore")
	snapshotID := flag.String("snapshot", "", "snapshot id (required for restore)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to open license store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	manager, err := backup.NewManager(store, cfg.Backup.Dir, cfg.Backup.MaxBackups, logger)
	if err != nil {
		logger.Error("failed to initialize backup manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	switch *action {
	case "create":
		id, err := manager.Snapshot(ctx)
		if err != nil {
			logger.Error("snapshot failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("created snapshot %s\n", id)

	case "list":
		snapshots, err := manager.List()
		if err != nil {
			logger.Error("listing snapshots failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if len(snapshots) == 0 {
			fmt.Println("no snapshots")
			return
		}
		for _, s := range snapshots {
			fmt.Printf("%s  %8d bytes  %s\n", s.ID, s.Size, s.Created.Format("2006-01-02 15:04:05"))
		}

	case "restore":
		if *snapshotID == "" {
			fmt.Fprintln(os.Stderr, "restore requires -snapshot")
			os.Exit(1)
		}
		if err := manager.Restore(ctx, *snapshotID); err != nil {
			if errors.Is(err, backup.ErrSnapshotNotFound) {
				fmt.Fprintf(os.Stderr, "snapshot %s not found\n", *snapshotID)
			} else {
				logger.Error("restore failed", slog.String("error", err.Error()))
			}
			os.Exit(1)
		}
		fmt.Printf("restored snapshot %s\n", *snapshotID)

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q (want create, list, or restore)\n", *action)
		os.Exit(1)
	}
}
