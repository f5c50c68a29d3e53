// Package config provides configuration loading for the ingestion pipeline.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateFormat is the wire format for window dates in configuration files.
const DateFormat = "2006-01-02"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Close releases any resources held by the provider
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Database DatabaseData  `json:"database"`
	API      APIData       `json:"api"`
	Ingest   IngestData    `json:"ingest,omitempty"`
	Server   ServerData    `json:"server,omitempty"`
	Stations []StationData `json:"stations" validate:"min=1,dive"`
	Window   WindowData    `json:"window"`
}

// DatabaseData holds the embedded database configuration
type DatabaseData struct {
	Path string `json:"path" validate:"required"`
}

// APIData holds configuration for the upstream climate-data API
type APIData struct {
	BaseURL  string        `json:"base_url" validate:"required,url"`
	Token    string        `json:"token,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	PageSize int           `json:"page_size,omitempty" validate:"gte=0,lte=1000"`
}

// IngestData holds retry and concurrency settings for an ingestion run
type IngestData struct {
	MaxRetries     int           `json:"max_retries,omitempty" validate:"gte=0"`
	InitialBackoff time.Duration `json:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `json:"max_backoff,omitempty"`
	Workers        int           `json:"workers,omitempty" validate:"gte=0"`
}

// ServerData holds configuration for the read-only HTTP server
type ServerData struct {
	ListenAddr      string        `json:"listen_addr,omitempty"`
	RefreshInterval time.Duration `json:"refresh_interval,omitempty"`
	RefreshDays     int           `json:"refresh_days,omitempty" validate:"gte=0"`
}

// StationData identifies one observation site to ingest
type StationData struct {
	StationID   string  `json:"station_id" validate:"required"`
	StationName string  `json:"station_name"`
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Elevation   float64 `json:"elevation"`
}

// WindowData holds the inclusive date range to ingest
type WindowData struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ApplyDefaults fills in zero-valued optional settings
func (c *ConfigData) ApplyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = 1000
	}
	if c.Ingest.MaxRetries == 0 {
		c.Ingest.MaxRetries = 3
	}
	if c.Ingest.InitialBackoff == 0 {
		c.Ingest.InitialBackoff = 500 * time.Millisecond
	}
	if c.Ingest.MaxBackoff == 0 {
		c.Ingest.MaxBackoff = 10 * time.Second
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 1
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8089"
	}
	if c.Server.RefreshDays == 0 {
		c.Server.RefreshDays = 7
	}
}

// ApplyEnvOverrides lets the environment override secrets and paths so
// they can stay out of the config file
func (c *ConfigData) ApplyEnvOverrides() {
	if token := os.Getenv("NOAA_API_TOKEN"); token != "" {
		c.API.Token = token
	}
	if path := os.Getenv("SNOWFALL_DB_PATH"); path != "" {
		c.Database.Path = path
	}
}

// Validate checks the configuration before any network or database work begins
func (c *ConfigData) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Window.StartDate.IsZero() || c.Window.EndDate.IsZero() {
		return fmt.Errorf("invalid configuration: window start_date and end_date are required")
	}
	if c.Window.EndDate.Before(c.Window.StartDate) {
		return fmt.Errorf("invalid configuration: window end_date %s precedes start_date %s",
			c.Window.EndDate.Format(DateFormat), c.Window.StartDate.Format(DateFormat))
	}

	seen := make(map[string]bool, len(c.Stations))
	for _, station := range c.Stations {
		if seen[station.StationID] {
			return fmt.Errorf("invalid configuration: duplicate station %s", station.StationID)
		}
		seen[station.StationID] = true
	}

	return nil
}
