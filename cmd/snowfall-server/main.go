// Command snowfall-server serves the ingested weather tables over HTTP and
// optionally re-ingests the trailing window on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/snowfall-analytics/snowfall-ingest/internal/constants"
	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/internal/ingest"
	"github.com/snowfall-analytics/snowfall-ingest/internal/log"
	"github.com/snowfall-analytics/snowfall-ingest/internal/noaa"
	"github.com/snowfall-analytics/snowfall-ingest/internal/server"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("snowfall-server %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	db, err := database.Open(cfgData.Database.Path, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serving an empty database is fine; the schema just has to exist
	if err := db.EnsureSchema(ctx); err != nil {
		log.Errorf("Failed to ensure schema: %v", err)
		os.Exit(1)
	}

	client := noaa.NewClient(cfgData.API, log.GetSugaredLogger())
	orchestrator := ingest.NewOrchestrator(client, db, cfgData.Ingest, 10*cfgData.API.Timeout, log.GetSugaredLogger())

	refresher := server.NewRefresher(orchestrator, cfgData.Stations, cfgData.Server, log.GetSugaredLogger())
	if err := refresher.Start(); err != nil {
		log.Errorf("Failed to start refresh scheduler: %v", err)
		os.Exit(1)
	}
	defer refresher.Stop()

	srv := server.New(cfgData.Server, db, log.GetSugaredLogger())
	if err := srv.Run(ctx); err != nil {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}
