package database

import "time"

// DateLayout is the format used for the weather_data date column.
const DateLayout = "2006-01-02"

// WeatherStation represents one observation site in the weather_station table
type WeatherStation struct {
	StationID   string
	StationName string
	Latitude    float64
	Longitude   float64
	Elevation   float64
}

// WeatherDay is the canonical wide row for one (station, date) in the
// weather_data table. Measurements not present in the source stay nil and
// persist as NULL; each measurement carries a parallel attributes field
// holding the source's data-quality flags.
type WeatherDay struct {
	StationID string
	Date      time.Time

	Precipitation           *float64
	PrecipitationAttributes *string
	Snowfall                *float64
	SnowfallAttributes      *string
	SnowDepth               *float64
	SnowDepthAttributes     *string
	TempMax                 *int
	TempMaxAttributes       *string
	TempMin                 *int
	TempMinAttributes       *string
}
