package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from a YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	// Pick up a .env file if one is present; missing is fine
	_ = godotenv.Load()

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Database struct {
			Path string `yaml:"path"`
		} `yaml:"database"`
		API struct {
			BaseURL  string `yaml:"base_url"`
			Token    string `yaml:"token"`
			Timeout  string `yaml:"timeout"`
			PageSize int    `yaml:"page_size"`
		} `yaml:"api"`
		Ingest struct {
			MaxRetries     int    `yaml:"max_retries"`
			InitialBackoff string `yaml:"initial_backoff"`
			MaxBackoff     string `yaml:"max_backoff"`
			Workers        int    `yaml:"workers"`
		} `yaml:"ingest"`
		Server struct {
			ListenAddr      string `yaml:"listen_addr"`
			RefreshInterval string `yaml:"refresh_interval"`
			RefreshDays     int    `yaml:"refresh_days"`
		} `yaml:"server"`
		Stations []struct {
			StationID   string  `yaml:"station_id"`
			StationName string  `yaml:"station_name"`
			Latitude    float64 `yaml:"latitude"`
			Longitude   float64 `yaml:"longitude"`
			Elevation   float64 `yaml:"elevation"`
		} `yaml:"stations"`
		Window struct {
			StartDate string `yaml:"start_date"`
			EndDate   string `yaml:"end_date"`
		} `yaml:"window"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Database: DatabaseData{Path: yamlConfig.Database.Path},
		API: APIData{
			BaseURL:  yamlConfig.API.BaseURL,
			Token:    yamlConfig.API.Token,
			PageSize: yamlConfig.API.PageSize,
		},
		Ingest: IngestData{
			MaxRetries: yamlConfig.Ingest.MaxRetries,
			Workers:    yamlConfig.Ingest.Workers,
		},
		Server: ServerData{
			ListenAddr:  yamlConfig.Server.ListenAddr,
			RefreshDays: yamlConfig.Server.RefreshDays,
		},
		Stations: make([]StationData, len(yamlConfig.Stations)),
	}

	for i, station := range yamlConfig.Stations {
		config.Stations[i] = StationData{
			StationID:   station.StationID,
			StationName: station.StationName,
			Latitude:    station.Latitude,
			Longitude:   station.Longitude,
			Elevation:   station.Elevation,
		}
	}

	if config.API.Timeout, err = parseDuration(yamlConfig.API.Timeout, "api.timeout"); err != nil {
		return nil, err
	}
	if config.Ingest.InitialBackoff, err = parseDuration(yamlConfig.Ingest.InitialBackoff, "ingest.initial_backoff"); err != nil {
		return nil, err
	}
	if config.Ingest.MaxBackoff, err = parseDuration(yamlConfig.Ingest.MaxBackoff, "ingest.max_backoff"); err != nil {
		return nil, err
	}
	if config.Server.RefreshInterval, err = parseDuration(yamlConfig.Server.RefreshInterval, "server.refresh_interval"); err != nil {
		return nil, err
	}

	if config.Window.StartDate, err = parseDate(yamlConfig.Window.StartDate, "window.start_date"); err != nil {
		return nil, err
	}
	if config.Window.EndDate, err = parseDate(yamlConfig.Window.EndDate, "window.end_date"); err != nil {
		return nil, err
	}

	config.ApplyEnvOverrides()
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

func parseDate(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return t, nil
}
