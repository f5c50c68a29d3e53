package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
database:
  path: data/weather.db
api:
  base_url: https://www.ncdc.noaa.gov/cdo-web/api/v2/data
  token: secret-token
  timeout: 10s
  page_size: 500
ingest:
  max_retries: 5
  initial_backoff: 250ms
  workers: 2
stations:
  - station_id: "GHCND:USW00094728"
    station_name: "NY CITY CENTRAL PARK, NY US"
    latitude: 40.77898
    longitude: -73.96925
    elevation: 42.7
window:
  start_date: "2023-01-01"
  end_date: "2023-01-03"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestYAMLProviderLoadsConfig(t *testing.T) {
	provider := NewYAMLProvider(writeConfig(t, validYAML))
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Path != "data/weather.db" {
		t.Errorf("database path: got %q", cfg.Database.Path)
	}
	if cfg.API.Token != "secret-token" {
		t.Errorf("token: got %q", cfg.API.Token)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("timeout: got %s", cfg.API.Timeout)
	}
	if cfg.API.PageSize != 500 {
		t.Errorf("page size: got %d", cfg.API.PageSize)
	}
	if cfg.Ingest.MaxRetries != 5 {
		t.Errorf("max retries: got %d", cfg.Ingest.MaxRetries)
	}
	if cfg.Ingest.Workers != 2 {
		t.Errorf("workers: got %d", cfg.Ingest.Workers)
	}
	if len(cfg.Stations) != 1 || cfg.Stations[0].StationID != "GHCND:USW00094728" {
		t.Errorf("stations: got %+v", cfg.Stations)
	}
	if cfg.Window.StartDate.Format(DateFormat) != "2023-01-01" {
		t.Errorf("start date: got %s", cfg.Window.StartDate)
	}
	if cfg.Window.EndDate.Format(DateFormat) != "2023-01-03" {
		t.Errorf("end date: got %s", cfg.Window.EndDate)
	}

	// Unset optional values pick up defaults
	if cfg.Ingest.InitialBackoff != 250*time.Millisecond {
		t.Errorf("initial backoff: got %s", cfg.Ingest.InitialBackoff)
	}
	if cfg.Ingest.MaxBackoff != 10*time.Second {
		t.Errorf("max backoff default: got %s", cfg.Ingest.MaxBackoff)
	}
	if cfg.Server.ListenAddr != ":8089" {
		t.Errorf("listen addr default: got %q", cfg.Server.ListenAddr)
	}
}

func TestYAMLProviderEnvOverridesToken(t *testing.T) {
	t.Setenv("NOAA_API_TOKEN", "env-token")

	provider := NewYAMLProvider(writeConfig(t, validYAML))
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected environment token to win, got %q", cfg.API.Token)
	}
}

func TestYAMLProviderRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(string) string
		wantErr string
	}{
		{
			name:    "inverted window",
			mangle:  func(c string) string { return strings.Replace(c, `end_date: "2023-01-03"`, `end_date: "2022-01-03"`, 1) },
			wantErr: "precedes",
		},
		{
			name:    "missing station id",
			mangle:  func(c string) string { return strings.Replace(c, `station_id: "GHCND:USW00094728"`, `station_id: ""`, 1) },
			wantErr: "invalid configuration",
		},
		{
			name:    "missing database path",
			mangle:  func(c string) string { return strings.Replace(c, "path: data/weather.db", `path: ""`, 1) },
			wantErr: "invalid configuration",
		},
		{
			name:    "latitude out of range",
			mangle:  func(c string) string { return strings.Replace(c, "latitude: 40.77898", "latitude: 140.0", 1) },
			wantErr: "invalid configuration",
		},
		{
			name:    "missing window",
			mangle:  func(c string) string { return strings.Replace(c, `start_date: "2023-01-01"`, `start_date: ""`, 1) },
			wantErr: "required",
		},
		{
			name:    "unparseable date",
			mangle:  func(c string) string { return strings.Replace(c, `start_date: "2023-01-01"`, `start_date: "01/01/2023"`, 1) },
			wantErr: "invalid window.start_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewYAMLProvider(writeConfig(t, tt.mangle(validYAML)))
			defer provider.Close()

			_, err := provider.LoadConfig()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestYAMLProviderDuplicateStations(t *testing.T) {
	dup := strings.Replace(validYAML, "stations:", `stations:
  - station_id: "GHCND:USW00094728"
    latitude: 1.0
    longitude: 1.0`, 1)

	provider := NewYAMLProvider(writeConfig(t, dup))
	defer provider.Close()

	_, err := provider.LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "duplicate station") {
		t.Errorf("expected duplicate station error, got %v", err)
	}
}
