package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/trelog/internal/autobackup"
	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/config"
	"github.com/claude/trelog/internal/importer"
	"github.com/claude/trelog/internal/storage"
	"github.com/dustin/go-humanize"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	file := flag.String("file", "", "path to a trelog backup JSON file (required)")
	policyFlag := flag.String("policy", "merge", "reconcile policy: merge or replace")
	source := flag.String("source", "", "source label for the import log (defaults to the file name)")
	dryRun := flag.Bool("dry-run", false, "report counts without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: trelog-import -config config.yaml -file backup.json [-policy merge|replace] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	policy, err := backup.ParsePolicy(*policyFlag)
	if err != nil {
		log.Error("invalid policy", "error", err)
		os.Exit(1)
	}
	if *source == "" {
		*source = filepath.Base(*file)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Error("failed to read backup file", "path", *file, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode, nothing will be written to the database")
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.Target(), log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("database connected", "driver", cfg.Database.Driver)

	records := storage.NewRecords(store)
	backups := autobackup.New(records, cfg.AutoBackup.Delay, log)
	records.OnChange(backups.Touch)
	defer backups.Stop()

	imp := importer.New(records, log, *dryRun)
	stats, err := imp.Import(ctx, *source, data, policy)
	if err != nil {
		if errors.Is(err, importer.ErrNothingToReplace) {
			log.Warn("nothing imported", "reason", err)
			printStats(stats)
			return
		}
		log.Error("import failed", "error", err)
		if stats != nil {
			printStats(stats)
		}
		os.Exit(1)
	}

	// Refresh the auto-backup now rather than after the quiet period.
	if err := backups.Flush(ctx); err != nil {
		log.Warn("auto-backup failed", "error", err)
	}

	printStats(stats)
	log.Info("import complete")
}

func printStats(stats *importer.Stats) {
	fmt.Println()
	fmt.Println("=== Import Summary ===")
	fmt.Printf("  Source:             %s (%s)\n", stats.Source, stats.Policy)
	fmt.Printf("  Schema version:     %d\n", stats.DeclaredVersion)
	fmt.Printf("  Sessions received:  %s\n", humanize.Comma(int64(stats.SessionsReceived)))
	fmt.Printf("  Sessions added:     %s\n", humanize.Comma(int64(stats.SessionsAdded)))
	fmt.Printf("  Sessions updated:   %s\n", humanize.Comma(int64(stats.SessionsUpdated)))
	fmt.Printf("  Templates received: %s\n", humanize.Comma(int64(stats.TemplatesReceived)))
	fmt.Printf("  Templates added:    %s\n", humanize.Comma(int64(stats.TemplatesAdded)))
	fmt.Printf("  Templates updated:  %s\n", humanize.Comma(int64(stats.TemplatesUpdated)))
	fmt.Printf("  Took:               %s\n", stats.Duration)
	if stats.DryRun {
		fmt.Println("  (dry run, nothing written)")
	}

	if len(stats.Warnings) > 0 {
		fmt.Printf("\n  Warnings:\n")
		for _, w := range stats.Warnings {
			fmt.Printf("    - %s\n", w)
		}
	}
	fmt.Println()
}
