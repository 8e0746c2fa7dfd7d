package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"streamhub/api"
	"streamhub/config"
	"streamhub/handlers"
	"streamhub/services/aggregate"
	"streamhub/services/kodik"
	"streamhub/services/resolver"
	"streamhub/services/site"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("StreamHub starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("STREAMHUB_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	sources := buildSources(settings)
	if len(sources) == 0 {
		log.Printf("Warning: no sources enabled, every lookup will return empty results")
	}

	timeout := time.Duration(settings.Aggregate.TimeoutSeconds) * time.Second
	aggregateSvc := aggregate.New(timeout, sources...)
	resolverSvc := resolver.NewService()

	queryHandler := handlers.NewQueryHandler(aggregateSvc, resolverSvc)
	resolveHandler := handlers.NewResolveHandler(resolverSvc)

	r := mux.NewRouter()
	api.Register(r, queryHandler, resolveHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s with %d sources\n", addr, len(sources))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// buildSources turns config entries into lookup backends. Misconfigured
// entries are skipped with a log line rather than aborting startup.
func buildSources(settings config.Settings) []aggregate.Source {
	var sources []aggregate.Source
	for _, cfg := range settings.EnabledSources() {
		switch cfg.Type {
		case "site":
			profileName := cfg.Profile
			if profileName == "" {
				profileName = cfg.Name
			}
			profile, ok := site.ProfileByName(profileName)
			if !ok {
				log.Printf("[main] unknown site profile %q for source %q, skipping", profileName, cfg.Name)
				continue
			}
			if cfg.Name != "" {
				profile.Name = cfg.Name
			}
			if cfg.URL != "" {
				profile.BaseURL = cfg.URL
			}
			sources = append(sources, site.New(profile, nil))
		case "kodik":
			if cfg.Token == "" {
				log.Printf("[main] kodik source %q has no token, skipping", cfg.Name)
				continue
			}
			sources = append(sources, kodik.New(cfg.Name, cfg.URL, cfg.Token, nil))
		case "remote":
			if cfg.URL == "" {
				log.Printf("[main] remote source %q has no url, skipping", cfg.Name)
				continue
			}
			sources = append(sources, aggregate.NewRemoteSource(cfg.Name, cfg.URL, nil))
		default:
			log.Printf("[main] source %q has unknown type %q, skipping", cfg.Name, cfg.Type)
		}
	}
	return sources
}
