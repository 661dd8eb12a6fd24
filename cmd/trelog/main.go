package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/trelog/internal/autobackup"
	"github.com/claude/trelog/internal/config"
	"github.com/claude/trelog/internal/draft"
	"github.com/claude/trelog/internal/importer"
	trelogmcp "github.com/claude/trelog/internal/mcp"
	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/server"
	"github.com/claude/trelog/internal/storage"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("trelog starting", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if err := storage.RunMigrations(cfg.Database.Driver, cfg.Database.Target()); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrate-only: exiting")
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error("trelog stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.Target(), log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	log.Info("database connected", "driver", cfg.Database.Driver)

	records := storage.NewRecords(store)
	backups := autobackup.New(records, cfg.AutoBackup.Delay, log)
	records.OnChange(backups.Touch)

	initial, err := records.Draft(ctx, draft.New(time.Now(), uuid.NewString))
	if err != nil {
		return fmt.Errorf("loading draft: %w", err)
	}
	editor := draft.NewEditor(initial, uuid.NewString, time.Now, func(s models.Session) error {
		return records.SaveDraft(context.Background(), s)
	})

	srv := server.New(records, importer.New(records, log, false), editor, cfg.Auth.APIKey, log)
	srv.MountMCP(mcpserver.NewStreamableHTTPServer(trelogmcp.New(records, Version, log)))

	listener, closeNet, err := listen(cfg, srv, log)
	if err != nil {
		return err
	}
	defer closeNet()

	httpSrv := &http.Server{Handler: srv}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
		if err := backups.Flush(shutdownCtx); err != nil {
			log.Error("final auto-backup failed", "error", err)
		}
		backups.Stop()
		return nil
	})
	return g.Wait()
}

// listen opens the tailnet listener when enabled, or a plain TCP one.
func listen(cfg *config.Config, srv *server.Server, log *slog.Logger) (net.Listener, func(), error) {
	if !cfg.Tailscale.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
		return ln, func() {}, nil
	}

	ts := &tsnet.Server{
		Hostname: cfg.Tailscale.Hostname,
		Dir:      cfg.Tailscale.StateDir,
	}
	if err := ts.Start(); err != nil {
		return nil, nil, fmt.Errorf("tsnet start: %w", err)
	}
	lc, err := ts.LocalClient()
	if err != nil {
		ts.Close()
		return nil, nil, fmt.Errorf("tsnet local client: %w", err)
	}
	srv.SetTailscale(lc)

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		ts.Close()
		return nil, nil, fmt.Errorf("tsnet listen: %w", err)
	}
	log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	return ln, func() { ts.Close() }, nil
}
