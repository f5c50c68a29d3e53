// Package database owns the embedded SQLite store for ingested weather data.
package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Schema matches the layout consumed by the downstream SQL models; the
// create statements are idempotent and never alter existing data.
const (
	createWeatherStationSQL = `
		CREATE TABLE IF NOT EXISTS weather_station (
			station_id VARCHAR PRIMARY KEY,
			station_name VARCHAR,
			latitude DECIMAL,
			longitude DECIMAL,
			elevation DECIMAL
		)`

	createWeatherDataSQL = `
		CREATE TABLE IF NOT EXISTS weather_data (
			station_id VARCHAR,
			date DATE,
			precipitation DECIMAL,
			precipitation_attributes VARCHAR,
			snowfall DECIMAL,
			snowfall_attributes VARCHAR,
			snow_depth DECIMAL,
			snow_depth_attributes VARCHAR,
			temp_max INTEGER,
			temp_max_attributes VARCHAR,
			temp_min INTEGER,
			temp_min_attributes VARCHAR,
			PRIMARY KEY (station_id, date)
		)`

	upsertWeatherStationSQL = `
		INSERT OR REPLACE INTO weather_station
			(station_id, station_name, latitude, longitude, elevation)
		VALUES (?, ?, ?, ?, ?)`

	upsertWeatherDataSQL = `
		INSERT OR REPLACE INTO weather_data
			(station_id, date,
			 precipitation, precipitation_attributes,
			 snowfall, snowfall_attributes,
			 snow_depth, snow_depth_attributes,
			 temp_max, temp_max_attributes,
			 temp_min, temp_min_attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// Client holds the connection to the embedded weather database. The store
// supports a single writer, so all writes are serialized behind writeMu.
type Client struct {
	db      *sql.DB
	path    string
	logger  *zap.SugaredLogger
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the database file at path
func Open(path string, logger *zap.SugaredLogger) (*Client, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "open", Err: err}
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreUnavailableError{Op: "open", Err: err}
	}

	return &Client{
		db:     db,
		path:   path,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// EnsureSchema creates the weather_station and weather_data tables if they
// do not exist. Idempotent; never drops or alters existing data.
func (c *Client) EnsureSchema(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, ddl := range []string{createWeatherStationSQL, createWeatherDataSQL} {
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return &StoreUnavailableError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// UpsertStation inserts or replaces one station row keyed by station_id
func (c *Client) UpsertStation(ctx context.Context, station WeatherStation) error {
	if station.StationID == "" {
		return &InvalidRowError{Reason: "station_id is empty"}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.db.ExecContext(ctx, upsertWeatherStationSQL,
		station.StationID, station.StationName,
		station.Latitude, station.Longitude, station.Elevation)
	if err != nil {
		return &StoreUnavailableError{Op: "upsert station", Err: err}
	}
	return nil
}

// UpsertDays applies a batch of day rows in one transaction, keyed by
// (station_id, date). The batch is all-or-nothing: a malformed row rejects
// the whole batch before anything is written, and a mid-batch failure rolls
// back, so a half-written batch is never visible.
func (c *Client) UpsertDays(ctx context.Context, days []WeatherDay) error {
	if len(days) == 0 {
		return nil
	}

	// Validate up front so a bad row cannot invalidate work already done
	// inside the transaction.
	for _, day := range days {
		if day.StationID == "" {
			return &InvalidRowError{Reason: "station_id is empty"}
		}
		if day.Date.IsZero() {
			return &InvalidRowError{StationID: day.StationID, Reason: "date is missing"}
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreUnavailableError{Op: "begin batch", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, upsertWeatherDataSQL)
	if err != nil {
		tx.Rollback()
		return &StoreUnavailableError{Op: "prepare batch", Err: err}
	}
	defer stmt.Close()

	for _, day := range days {
		_, err := stmt.ExecContext(ctx,
			day.StationID, day.Date.Format(DateLayout),
			day.Precipitation, day.PrecipitationAttributes,
			day.Snowfall, day.SnowfallAttributes,
			day.SnowDepth, day.SnowDepthAttributes,
			day.TempMax, day.TempMaxAttributes,
			day.TempMin, day.TempMinAttributes)
		if err != nil {
			tx.Rollback()
			return &StoreUnavailableError{Op: "upsert day", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreUnavailableError{Op: "commit batch", Err: err}
	}

	c.logger.Debugf("upserted %d day rows", len(days))
	return nil
}

// Stations returns all station rows ordered by station_id
func (c *Client) Stations(ctx context.Context) ([]WeatherStation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT station_id, station_name, latitude, longitude, elevation
		 FROM weather_station ORDER BY station_id`)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "query stations", Err: err}
	}
	defer rows.Close()

	var stations []WeatherStation
	for rows.Next() {
		var s WeatherStation
		var name sql.NullString
		if err := rows.Scan(&s.StationID, &name, &s.Latitude, &s.Longitude, &s.Elevation); err != nil {
			return nil, &StoreUnavailableError{Op: "scan station", Err: err}
		}
		if name.Valid {
			s.StationName = name.String
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// Days returns the day rows for one station within an inclusive date range,
// ordered by date. Zero start/end times leave that bound open.
func (c *Client) Days(ctx context.Context, stationID string, start, end time.Time) ([]WeatherDay, error) {
	query := `SELECT station_id, date,
			precipitation, precipitation_attributes,
			snowfall, snowfall_attributes,
			snow_depth, snow_depth_attributes,
			temp_max, temp_max_attributes,
			temp_min, temp_min_attributes
		FROM weather_data WHERE station_id = ?`
	args := []interface{}{stationID}

	if !start.IsZero() {
		query += " AND date >= ?"
		args = append(args, start.Format(DateLayout))
	}
	if !end.IsZero() {
		query += " AND date <= ?"
		args = append(args, end.Format(DateLayout))
	}
	query += " ORDER BY date"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "query days", Err: err}
	}
	defer rows.Close()

	var days []WeatherDay
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, &StoreUnavailableError{Op: "scan day", Err: err}
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// DayCount returns the total number of rows in weather_data
func (c *Client) DayCount(ctx context.Context) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&count); err != nil {
		return 0, &StoreUnavailableError{Op: "count days", Err: err}
	}
	return count, nil
}

func scanDay(rows *sql.Rows) (WeatherDay, error) {
	var day WeatherDay
	var date time.Time
	var prcp, snow, snwd sql.NullFloat64
	var tmax, tmin sql.NullInt64
	var prcpAttr, snowAttr, snwdAttr, tmaxAttr, tminAttr sql.NullString

	// The date column is declared DATE, so the driver hands back a parsed
	// time.Time rather than the stored text.
	err := rows.Scan(&day.StationID, &date,
		&prcp, &prcpAttr, &snow, &snowAttr, &snwd, &snwdAttr,
		&tmax, &tmaxAttr, &tmin, &tminAttr)
	if err != nil {
		return WeatherDay{}, err
	}

	// Normalize to midnight UTC so rows read back compare equal to the
	// rows that were written.
	day.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if prcp.Valid {
		day.Precipitation = &prcp.Float64
	}
	if snow.Valid {
		day.Snowfall = &snow.Float64
	}
	if snwd.Valid {
		day.SnowDepth = &snwd.Float64
	}
	if tmax.Valid {
		v := int(tmax.Int64)
		day.TempMax = &v
	}
	if tmin.Valid {
		v := int(tmin.Int64)
		day.TempMin = &v
	}
	if prcpAttr.Valid {
		day.PrecipitationAttributes = &prcpAttr.String
	}
	if snowAttr.Valid {
		day.SnowfallAttributes = &snowAttr.String
	}
	if snwdAttr.Valid {
		day.SnowDepthAttributes = &snwdAttr.String
	}
	if tmaxAttr.Valid {
		day.TempMaxAttributes = &tmaxAttr.String
	}
	if tminAttr.Valid {
		day.TempMinAttributes = &tminAttr.String
	}

	return day, nil
}
