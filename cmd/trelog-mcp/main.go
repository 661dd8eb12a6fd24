package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/claude/trelog/internal/config"
	trelogmcp "github.com/claude/trelog/internal/mcp"
	"github.com/claude/trelog/internal/storage"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file; reads the database directly")
	serverURL := flag.String("server", "", "trelog server URL; reads through the HTTP API instead of the database")
	apiKey := flag.String("api-key", os.Getenv("TRELOG_AUTH_API_KEY"), "API key for -server")
	flag.Parse()

	// stdout carries the MCP protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if (*configPath == "") == (*serverURL == "") {
		fmt.Fprintf(os.Stderr, "Usage: trelog-mcp -config config.yaml | -server <URL> [-api-key KEY]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var ds trelogmcp.DataSource
	if *serverURL != "" {
		ds = trelogmcp.NewHTTPClient(strings.TrimRight(*serverURL, "/"), *apiKey)
		log.Info("serving MCP over stdio", "source", *serverURL)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		store, err := storage.Open(context.Background(), cfg.Database.Driver, cfg.Database.Target(), log)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		ds = storage.NewRecords(store)
		log.Info("serving MCP over stdio", "source", cfg.Database.Driver)
	}

	if err := server.ServeStdio(trelogmcp.New(ds, Version, log)); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
