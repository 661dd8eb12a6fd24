package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/upload"
	"github.com/dustin/go-humanize"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "trelog server URL (e.g. https://trelog.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("TRELOG_AUTH_API_KEY"), "API key for the server, if it requires one")
	dir := flag.String("path", "", "directory containing exported trelog backup files")
	policyFlag := flag.String("policy", "merge", "reconcile policy sent with each file: merge or replace")
	dryRun := flag.Bool("dry-run", false, "analyze files but don't send them to the server")
	list := flag.Bool("list", false, "list files already delivered to -server and exit")
	reset := flag.Bool("reset", false, "forget earlier deliveries to -server so every file is sent again")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("trelog-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" && !*list {
		fmt.Fprintf(os.Stderr, "Usage: trelog-upload -server <URL> -path <backup dir> [-policy merge|replace] [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	*serverURL = strings.TrimRight(*serverURL, "/")

	policy, err := backup.ParsePolicy(*policyFlag)
	if err != nil {
		log.Error("invalid policy", "error", err)
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	state, err := upload.OpenStateDB(filepath.Join(homeDir, ".trelog-upload"))
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		if err := printDeliveries(ctx, state, *serverURL); err != nil {
			log.Error("failed to list deliveries", "error", err)
			os.Exit(1)
		}
		return
	}

	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		log.Error("backup directory not found", "path", *dir)
		os.Exit(1)
	}

	if *reset && !*dryRun {
		n, err := state.Forget(ctx, *serverURL)
		if err != nil {
			log.Error("failed to reset state", "error", err)
			os.Exit(1)
		}
		log.Info("forgot earlier deliveries", "server", *serverURL, "files", n)
	}

	var client *upload.Client
	if *dryRun {
		log.Info("DRY RUN mode, files will be analyzed but not sent")
	} else {
		client = upload.NewClient(*serverURL, *apiKey)
		if err := client.Ping(ctx); err != nil {
			log.Error("server not reachable", "server", *serverURL, "error", err)
			os.Exit(1)
		}
	}

	uploader := upload.New(client, state, *dir, policy, *dryRun, log)
	stats, err := uploader.Run(ctx)
	printStats(stats)
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}
	log.Info("upload complete")
}

func printDeliveries(ctx context.Context, state *upload.StateDB, server string) error {
	deliveries, err := state.Deliveries(ctx, server)
	if err != nil {
		return err
	}
	fmt.Printf("%d file(s) delivered to %s\n", len(deliveries), server)
	for _, d := range deliveries {
		fmt.Printf("  %-40s %-7s +%d ~%d sessions, +%d ~%d templates, %s\n",
			d.Path, d.Policy,
			d.Result.SessionsAdded, d.Result.SessionsUpdated,
			d.Result.TemplatesAdded, d.Result.TemplatesUpdated,
			humanize.Time(d.UploadedAt))
	}
	return nil
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Files total:        %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:     %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:      %d (already uploaded or empty)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:      %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Sessions sent:      %s\n", humanize.Comma(int64(stats.SessionsSent)))
	fmt.Printf("  Sessions added:     %s\n", humanize.Comma(int64(stats.SessionsAdded)))
	fmt.Printf("  Sessions updated:   %s\n", humanize.Comma(int64(stats.SessionsUpdated)))
	fmt.Printf("  Templates sent:     %s\n", humanize.Comma(int64(stats.TemplatesSent)))
	fmt.Printf("  Templates added:    %s\n", humanize.Comma(int64(stats.TemplatesAdded)))
	fmt.Printf("  Templates updated:  %s\n", humanize.Comma(int64(stats.TemplatesUpdated)))
	if stats.Warnings > 0 {
		fmt.Printf("  Server warnings:    %d\n", stats.Warnings)
	}
	fmt.Println()
}
