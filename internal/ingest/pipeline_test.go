package ingest

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/internal/noaa"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"go.uber.org/zap"
)

// End-to-end over a real database file: a three-day synthetic response
// ingests into exactly three rows, and a second identical run leaves the
// table unchanged.
func TestIngestionIsIdempotentEndToEnd(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "weather.db"), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	station := testStation("USW00094728")
	fetcher := &fakeFetcher{
		records: map[string][]noaa.ObservationRecord{
			station.StationID: threeDayRecords(station.StationID),
		},
	}
	recorder := &sleepRecorder{}
	o := newTestOrchestrator(fetcher, db, recorder)

	window := config.WindowData{
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
	}

	run := func(pass string) []database.WeatherDay {
		summary, err := o.Run(context.Background(), []config.StationData{station}, window)
		if err != nil {
			t.Fatalf("%s run: %v", pass, err)
		}
		if !summary.OK() {
			t.Fatalf("%s run failed units: %+v", pass, summary.Failed)
		}
		days, err := db.Days(context.Background(), station.StationID, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("%s query: %v", pass, err)
		}
		return days
	}

	first := run("first")
	if len(first) != 3 {
		t.Fatalf("expected 3 rows after first run, got %d", len(first))
	}

	second := run("second")
	if len(second) != 3 {
		t.Fatalf("expected 3 rows after second run, got %d", len(second))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second run changed table state:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	stations, err := db.Stations(context.Background())
	if err != nil {
		t.Fatalf("stations query: %v", err)
	}
	if len(stations) != 1 || stations[0].StationID != station.StationID {
		t.Errorf("expected one station row from config, got %+v", stations)
	}
}
