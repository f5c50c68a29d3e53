// Package ingest drives the fetch → map → persist pipeline for daily
// weather observations.
package ingest

import (
	"fmt"
	"time"

	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/internal/noaa"
)

// datatypeSpec describes how one external datatype code lands in the wide
// day row: which field it targets, how its value parses, and the divisor
// that undoes the source's integer scaling. Exactly one of setDecimal and
// setInteger is set.
type datatypeSpec struct {
	scale      float64
	setDecimal func(*database.WeatherDay, float64, *string)
	setInteger func(*database.WeatherDay, int, *string)
}

// datatypeTable is the single source of truth for recognized datatype
// codes. Codes not listed here are ignored on purpose so that new datatypes
// added upstream do not break ingestion.
//
// The API reports standard units with per-datatype integer scaling:
// PRCP in hundredths of an inch, SNOW and SNWD in tenths of an inch,
// TMAX and TMIN in whole degrees.
var datatypeTable = map[string]datatypeSpec{
	"PRCP": {
		scale: 100,
		setDecimal: func(d *database.WeatherDay, v float64, attrs *string) {
			d.Precipitation = &v
			d.PrecipitationAttributes = attrs
		},
	},
	"SNOW": {
		scale: 10,
		setDecimal: func(d *database.WeatherDay, v float64, attrs *string) {
			d.Snowfall = &v
			d.SnowfallAttributes = attrs
		},
	},
	"SNWD": {
		scale: 10,
		setDecimal: func(d *database.WeatherDay, v float64, attrs *string) {
			d.SnowDepth = &v
			d.SnowDepthAttributes = attrs
		},
	},
	"TMAX": {
		setInteger: func(d *database.WeatherDay, v int, attrs *string) {
			d.TempMax = &v
			d.TempMaxAttributes = attrs
		},
	},
	"TMIN": {
		setInteger: func(d *database.WeatherDay, v int, attrs *string) {
			d.TempMin = &v
			d.TempMinAttributes = attrs
		},
	},
}

// Warning reports a single field that could not be converted. The field is
// left null; the surrounding row and batch proceed.
type Warning struct {
	StationID string
	Date      string
	Datatype  string
	Err       error
}

func (w Warning) String() string {
	return fmt.Sprintf("station %s date %s: dropping %s: %v", w.StationID, w.Date, w.Datatype, w.Err)
}

// MapToRows folds per-datatype observation records into one wide row per
// (station, date). It is a pure function: grouping is order-independent,
// and output rows appear in order of each group's first appearance in the
// input, so identical input ordering yields identical output.
func MapToRows(records []noaa.ObservationRecord) ([]database.WeatherDay, []Warning) {
	type groupKey struct {
		station string
		date    string
	}

	index := make(map[groupKey]int)
	var rows []database.WeatherDay
	var warnings []Warning

	for _, rec := range records {
		if _, known := datatypeTable[rec.Datatype]; !known {
			// Unrecognized datatype: ignore, forward-compatible with API additions
			continue
		}

		key := groupKey{station: rec.Station, date: rec.Date}

		i, ok := index[key]
		if !ok {
			date, err := parseObservationDate(rec.Date)
			if err != nil {
				warnings = append(warnings, Warning{
					StationID: rec.Station, Date: rec.Date, Datatype: rec.Datatype, Err: err,
				})
				continue
			}
			rows = append(rows, database.WeatherDay{StationID: rec.Station, Date: date})
			i = len(rows) - 1
			index[key] = i
		}

		if warning := applyRecord(&rows[i], rec); warning != nil {
			warnings = append(warnings, *warning)
		}
	}

	return rows, warnings
}

// applyRecord folds one record's datatype/value pair into the row. A
// conversion failure nulls only that field and is reported as a warning.
func applyRecord(row *database.WeatherDay, rec noaa.ObservationRecord) *Warning {
	spec := datatypeTable[rec.Datatype]

	var attrs *string
	if rec.Attributes != "" {
		a := rec.Attributes
		attrs = &a
	}

	if spec.setDecimal != nil {
		v, err := rec.Value.Float64()
		if err != nil {
			return &Warning{StationID: rec.Station, Date: rec.Date, Datatype: rec.Datatype, Err: err}
		}
		spec.setDecimal(row, v/spec.scale, attrs)
		return nil
	}

	// Integer fields must hold whole values; refusing a fractional value
	// here is what keeps the conversion from ever truncating silently.
	n, err := rec.Value.Int64()
	if err != nil {
		return &Warning{StationID: rec.Station, Date: rec.Date, Datatype: rec.Datatype, Err: err}
	}
	spec.setInteger(row, int(n), attrs)
	return nil
}

func parseObservationDate(value string) (time.Time, error) {
	if t, err := time.Parse(noaa.ObservationTimeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(noaa.RequestDateLayout, value)
}
