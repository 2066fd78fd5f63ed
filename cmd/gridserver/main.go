package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gnemet/tablegrid/database/seedsource"
	"github.com/gnemet/tablegrid/internal/config"
	"github.com/gnemet/tablegrid/internal/pages"
	"github.com/gnemet/tablegrid/internal/server"
	"github.com/gnemet/tablegrid/internal/session"
	"github.com/gnemet/tablegrid/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	catalog, err := pages.Embedded()
	if err != nil {
		log.Fatalf("Failed to load pages: %v", err)
	}
	if cfg.Definitions.Path != "" {
		if err := catalog.LoadDir(cfg.Definitions.Path); err != nil {
			log.Fatalf("Failed to load definitions from %s: %v", cfg.Definitions.Path, err)
		}
	}

	store, err := storage.Open(cfg.Storage.Type, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Storage.Type, err)
	}
	defer store.Close()
	if keys, err := store.Keys("savedSearches:"); err == nil {
		slog.Info("Storage ready", "type", cfg.Storage.Type, "pages_with_saved_searches", len(keys))
	}

	var seeds server.SeedLoader
	if dbCfg, ok := cfg.DefaultDatabase(); ok {
		src, err := seedsource.Open(dbCfg.ConnString(), dbCfg.MaxConns, dbCfg.MaxIdleTime, dbCfg.MaxLifetime)
		if err != nil {
			slog.Warn("Database unavailable, pages use embedded records", "database", dbCfg.Name, "error", err)
		} else {
			defer src.Close()
			seeds = src
		}
	}

	pool := session.NewPool(session.Options{
		MaxSessions: cfg.Sessions.Max,
		IdleTimeout: cfg.Sessions.IdleTimeout,
		AbsTimeout:  cfg.Sessions.AbsTimeout,
		Latency:     cfg.Server.SimulatedLatency,
		Store:       store,
		Logger:      logger,
	})
	defer pool.Close()

	srv := server.New(server.Options{
		Catalog:  catalog,
		Pool:     pool,
		Seeds:    seeds,
		Language: cfg.Application.Language,
		Logger:   logger,
	})

	slog.Info("Server starting", "app", cfg.Application.Name, "version", cfg.Application.Version,
		"port", cfg.Server.Port, "pages", len(catalog.Names()))
	if err := http.ListenAndServe(":"+cfg.Server.Port, srv); err != nil {
		log.Fatal(err)
	}
}
