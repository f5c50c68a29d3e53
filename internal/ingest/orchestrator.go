package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/internal/noaa"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"go.uber.org/zap"
)

// Fetcher retrieves all observation records for one station and date range
type Fetcher interface {
	FetchAll(ctx context.Context, stationID string, start, end time.Time) ([]noaa.ObservationRecord, error)
}

// Store is the persistence surface the orchestrator writes through
type Store interface {
	EnsureSchema(ctx context.Context) error
	UpsertStation(ctx context.Context, station database.WeatherStation) error
	UpsertDays(ctx context.Context, days []database.WeatherDay) error
}

// SleepFunc pauses between retries. Injected so tests can run the backoff
// state machine without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UnitState tracks where a unit of work is in the pipeline
type UnitState int

const (
	StatePending UnitState = iota
	StateFetching
	StateMapping
	StatePersisting
	StateRetrying
	StateDone
	StateFailed
)

func (s UnitState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateFetching:
		return "FETCHING"
	case StateMapping:
		return "MAPPING"
	case StatePersisting:
		return "PERSISTING"
	case StateRetrying:
		return "RETRYING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// RetryPolicy bounds the retry loop for transient failures
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p RetryPolicy) next(backoff time.Duration) time.Duration {
	backoff *= 2
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Unit is one (station, date window) slice of the run. Multi-year windows
// are split per calendar year so each slice retries and fails on its own.
type Unit struct {
	Station config.StationData
	Start   time.Time
	End     time.Time
}

func (u Unit) String() string {
	return fmt.Sprintf("%s %s..%s", u.Station.StationID,
		u.Start.Format(config.DateFormat), u.End.Format(config.DateFormat))
}

// UnitResult records the terminal state of one unit
type UnitResult struct {
	Unit     Unit
	State    UnitState
	Rows     int
	Attempts int
	Err      error
}

// Summary aggregates the per-unit results of one ingestion run
type Summary struct {
	RunID     string
	Succeeded []UnitResult
	Failed    []UnitResult
}

// OK reports whether every unit completed
func (s *Summary) OK() bool {
	return len(s.Failed) == 0
}

// Orchestrator coordinates fetch → map → persist across stations and date
// windows, isolating failures per unit.
type Orchestrator struct {
	fetcher      Fetcher
	store        Store
	policy       RetryPolicy
	sleep        SleepFunc
	workers      int
	fetchTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator from ingest configuration
func NewOrchestrator(fetcher Fetcher, store Store, cfg config.IngestData, fetchTimeout time.Duration, logger *zap.SugaredLogger) *Orchestrator {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		fetcher: fetcher,
		store:   store,
		policy: RetryPolicy{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		sleep:        defaultSleep,
		workers:      workers,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Run executes one full ingestion over the configured stations and window.
// It returns an error only for setup failures; unit-level failures land in
// the summary so one bad station cannot abort the rest of the run.
func (o *Orchestrator) Run(ctx context.Context, stations []config.StationData, window config.WindowData) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}

	units := splitUnits(stations, window)
	o.logger.Infof("starting ingestion run %s: %d stations, %d units, window %s..%s",
		summary.RunID, len(stations), len(units),
		window.StartDate.Format(config.DateFormat), window.EndDate.Format(config.DateFormat))

	// Schema is ensured exactly once, before any unit begins fetching
	if err := o.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Station rows come from configuration and are upserted once per run,
	// independent of day-level ingestion.
	stationErrs := o.upsertStations(ctx, stations)

	results := o.runUnits(ctx, units, stationErrs)

	for _, result := range results {
		if result.State == StateDone {
			summary.Succeeded = append(summary.Succeeded, result)
		} else {
			summary.Failed = append(summary.Failed, result)
		}
	}

	o.logger.Infof("ingestion run %s finished: %d succeeded, %d failed",
		summary.RunID, len(summary.Succeeded), len(summary.Failed))

	return summary, nil
}

func (o *Orchestrator) runUnits(ctx context.Context, units []Unit, stationErrs map[string]error) []UnitResult {
	if o.workers == 1 {
		results := make([]UnitResult, 0, len(units))
		for _, unit := range units {
			results = append(results, o.dispatchUnit(ctx, unit, stationErrs))
		}
		return results
	}

	// Fetches may run in parallel across units; the store serializes its
	// own writes, so workers only need to agree on who takes which unit.
	unitCh := make(chan int)
	results := make([]UnitResult, len(units))

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range unitCh {
				results[i] = o.dispatchUnit(ctx, units[i], stationErrs)
			}
		}()
	}

	for i := range units {
		unitCh <- i
	}
	close(unitCh)
	wg.Wait()

	return results
}

func (o *Orchestrator) dispatchUnit(ctx context.Context, unit Unit, stationErrs map[string]error) UnitResult {
	if err, ok := stationErrs[unit.Station.StationID]; ok {
		return UnitResult{Unit: unit, State: StateFailed, Err: err}
	}
	result := o.runUnit(ctx, unit)
	if result.State == StateDone {
		o.logger.Infof("unit %s done: %d rows", unit, result.Rows)
	} else {
		o.logger.Errorf("unit %s failed after %d attempts: %v", unit, result.Attempts, result.Err)
	}
	return result
}

// runUnit walks one unit through the pipeline state machine:
// FETCHING → MAPPING → PERSISTING → DONE, detouring through RETRYING with
// exponential backoff on retryable errors and landing in FAILED when
// retries are exhausted or the error is not retryable.
func (o *Orchestrator) runUnit(ctx context.Context, unit Unit) UnitResult {
	result := UnitResult{Unit: unit, State: StatePending}

	// A cancelled run stops issuing new fetches
	if err := ctx.Err(); err != nil {
		result.State = StateFailed
		result.Err = err
		return result
	}

	var records []noaa.ObservationRecord
	var rows []database.WeatherDay

	backoff := o.policy.InitialBackoff
	retriesLeft := o.policy.MaxRetries
	result.State = StateFetching

	for {
		var err error

		switch result.State {
		case StateFetching:
			result.Attempts++
			records, err = o.fetchUnit(ctx, unit)
			if err == nil {
				result.State = StateMapping
				continue
			}

		case StateMapping:
			var warnings []Warning
			rows, warnings = MapToRows(records)
			for _, warning := range warnings {
				o.logger.Warnf("unit %s: %s", unit, warning)
			}
			result.State = StatePersisting
			continue

		case StatePersisting:
			result.Attempts++
			err = o.store.UpsertDays(ctx, rows)
			if err == nil {
				result.State = StateDone
				result.Rows = len(rows)
				return result
			}
		}

		if !IsRetryable(err) || retriesLeft == 0 {
			result.State = StateFailed
			result.Err = err
			return result
		}

		retriesLeft--
		resume := result.State
		result.State = StateRetrying
		o.logger.Warnf("unit %s: %v; retrying %s in %s", unit, err, resume, backoff)

		if sleepErr := o.sleep(ctx, backoff); sleepErr != nil {
			result.State = StateFailed
			result.Err = sleepErr
			return result
		}

		backoff = o.policy.next(backoff)
		result.State = resume
	}
}

func (o *Orchestrator) fetchUnit(ctx context.Context, unit Unit) ([]noaa.ObservationRecord, error) {
	// Every fetch carries a deadline so a stalled call cannot hang the run
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}
	return o.fetcher.FetchAll(ctx, unit.Station.StationID, unit.Start, unit.End)
}

// upsertStations writes station metadata, retrying transient store errors.
// A station that cannot be written poisons all of its units.
func (o *Orchestrator) upsertStations(ctx context.Context, stations []config.StationData) map[string]error {
	stationErrs := make(map[string]error)

	for _, station := range stations {
		row := database.WeatherStation{
			StationID:   station.StationID,
			StationName: station.StationName,
			Latitude:    station.Latitude,
			Longitude:   station.Longitude,
			Elevation:   station.Elevation,
		}

		backoff := o.policy.InitialBackoff
		var err error
		for attempt := 0; ; attempt++ {
			err = o.store.UpsertStation(ctx, row)
			if err == nil || !IsRetryable(err) || attempt >= o.policy.MaxRetries {
				break
			}
			o.logger.Warnf("station %s upsert: %v; retrying in %s", station.StationID, err, backoff)
			if sleepErr := o.sleep(ctx, backoff); sleepErr != nil {
				err = sleepErr
				break
			}
			backoff = o.policy.next(backoff)
		}
		if err != nil {
			stationErrs[station.StationID] = fmt.Errorf("station upsert failed: %w", err)
		}
	}

	return stationErrs
}

// splitUnits expands the configured window into per-station, per-calendar-
// year units of work.
func splitUnits(stations []config.StationData, window config.WindowData) []Unit {
	var units []Unit
	for _, station := range stations {
		for year := window.StartDate.Year(); year <= window.EndDate.Year(); year++ {
			start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
			if start.Before(window.StartDate) {
				start = window.StartDate
			}
			if end.After(window.EndDate) {
				end = window.EndDate
			}
			units = append(units, Unit{Station: station, Start: start, End: end})
		}
	}
	return units
}

// retryable is implemented by the error types in the fetch and persistence
// taxonomies that are safe to retry with backoff.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err may succeed on retry
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
