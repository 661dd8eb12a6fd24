package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/trelog/internal/config"
	"github.com/claude/trelog/internal/export"
	"github.com/claude/trelog/internal/search"
	"github.com/claude/trelog/internal/storage"
	"github.com/claude/trelog/internal/summary"
	"github.com/dustin/go-humanize"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	kindFlag := flag.String("kind", "all", "what to export: all, sessions or templates")
	csv := flag.Bool("csv", false, "write the filtered sessions as CSV instead of a JSON backup")
	query := flag.String("q", "", "session filter for -csv")
	onlyWithSets := flag.Bool("only-with-sets", false, "with -csv, only sessions that have sets")
	out := flag.String("out", ".", "output directory, or a file path; - writes to stdout")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	kind, err := export.ParseKind(*kindFlag)
	if err != nil {
		log.Error("invalid kind", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.Target(), log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	records := storage.NewRecords(store)

	sessions, err := records.History(ctx)
	if err != nil {
		log.Error("failed to load history", "error", err)
		os.Exit(1)
	}
	templates, err := records.Templates(ctx)
	if err != nil {
		log.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	now := time.Now()
	var name string
	var write func(io.Writer) error
	if *csv {
		sessions = search.Filter{Query: *query, OnlyWithSets: *onlyWithSets}.Apply(sessions)
		name = export.CSVFilename(now)
		write = func(w io.Writer) error { return export.WriteCSV(w, sessions) }
	} else {
		name = export.Filename(kind, now)
		file := export.Build(kind, sessions, templates, now)
		write = func(w io.Writer) error { return export.WriteJSON(w, file) }
	}

	path, err := writeOutput(*out, name, write)
	if err != nil {
		log.Error("export failed", "error", err)
		os.Exit(1)
	}

	totals := summary.Flat(sessions)
	log.Info("export complete",
		"path", path,
		"sessions", humanize.Comma(int64(len(sessions))),
		"templates", humanize.Comma(int64(len(templates))),
		"total_volume_kg", humanize.Commaf(totals.TotalVolume),
		"sets", humanize.Commaf(totals.SetCount),
	)
}

// writeOutput resolves out (stdout, directory or file) and writes to it.
func writeOutput(out, name string, write func(io.Writer) error) (string, error) {
	if out == "-" {
		return "stdout", write(os.Stdout)
	}
	path := out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, name)
	}

	f, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return path, err
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}
