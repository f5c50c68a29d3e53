// Command snowfall-ingest runs one full ingestion of daily weather
// observations for the configured stations and date window.
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
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	station := flag.String("station", "", "Restrict the run to a single station ID from the config")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("snowfall-ingest %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration; malformed config is rejected here, before any
	// network call.
	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	stations := cfgData.Stations
	if *station != "" {
		stations = nil
		for _, s := range cfgData.Stations {
			if s.StationID == *station {
				stations = append(stations, s)
			}
		}
		if len(stations) == 0 {
			log.Errorf("station %s not found in configuration", *station)
			os.Exit(1)
		}
	}

	db, err := database.Open(cfgData.Database.Path, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	client := noaa.NewClient(cfgData.API, log.GetSugaredLogger())

	// A unit's fetch spans multiple pages, so its budget is a multiple of
	// the per-request timeout.
	orchestrator := ingest.NewOrchestrator(client, db, cfgData.Ingest, 10*cfgData.API.Timeout, log.GetSugaredLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx, stations, cfgData.Window)
	if err != nil {
		log.Errorf("Ingestion run error: %v", err)
		os.Exit(1)
	}

	if !summary.OK() {
		fmt.Fprintf(os.Stderr, "run %s: %d unit(s) failed:\n", summary.RunID, len(summary.Failed))
		for _, failed := range summary.Failed {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", failed.Unit, failed.Err)
		}
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
