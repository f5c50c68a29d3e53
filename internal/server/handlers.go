package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/snowfall-analytics/snowfall-ingest/internal/constants"
	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
)

type stationResponse struct {
	StationID   string  `json:"station_id"`
	StationName string  `json:"station_name,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Elevation   float64 `json:"elevation"`
}

type dayResponse struct {
	StationID               string   `json:"station_id"`
	Date                    string   `json:"date"`
	Precipitation           *float64 `json:"precipitation"`
	PrecipitationAttributes *string  `json:"precipitation_attributes,omitempty"`
	Snowfall                *float64 `json:"snowfall"`
	SnowfallAttributes      *string  `json:"snowfall_attributes,omitempty"`
	SnowDepth               *float64 `json:"snow_depth"`
	SnowDepthAttributes     *string  `json:"snow_depth_attributes,omitempty"`
	TempMax                 *int     `json:"temp_max"`
	TempMaxAttributes       *string  `json:"temp_max_attributes,omitempty"`
	TempMin                 *int     `json:"temp_min"`
	TempMinAttributes       *string  `json:"temp_min_attributes,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	count, err := s.db.DayCount(req.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"version": constants.Version,
		"days":    count,
	})
}

func (s *Server) handleStations(w http.ResponseWriter, req *http.Request) {
	stations, err := s.db.Stations(req.Context())
	if err != nil {
		s.logger.Errorf("error querying stations: %v", err)
		s.writeError(w, http.StatusInternalServerError, "error querying stations")
		return
	}

	resp := make([]stationResponse, 0, len(stations))
	for _, station := range stations {
		resp = append(resp, stationResponse{
			StationID:   station.StationID,
			StationName: station.StationName,
			Latitude:    station.Latitude,
			Longitude:   station.Longitude,
			Elevation:   station.Elevation,
		})
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleStationDays(w http.ResponseWriter, req *http.Request) {
	stationID := mux.Vars(req)["id"]

	start, ok := s.parseDateParam(w, req, "start")
	if !ok {
		return
	}
	end, ok := s.parseDateParam(w, req, "end")
	if !ok {
		return
	}

	days, err := s.db.Days(req.Context(), stationID, start, end)
	if err != nil {
		s.logger.Errorf("error querying days for %s: %v", stationID, err)
		s.writeError(w, http.StatusInternalServerError, "error querying weather data")
		return
	}

	resp := make([]dayResponse, 0, len(days))
	for _, day := range days {
		resp = append(resp, toDayResponse(day))
	}
	s.writeJSON(w, resp)
}

func toDayResponse(day database.WeatherDay) dayResponse {
	return dayResponse{
		StationID:               day.StationID,
		Date:                    day.Date.Format(database.DateLayout),
		Precipitation:           day.Precipitation,
		PrecipitationAttributes: day.PrecipitationAttributes,
		Snowfall:                day.Snowfall,
		SnowfallAttributes:      day.SnowfallAttributes,
		SnowDepth:               day.SnowDepth,
		SnowDepthAttributes:     day.SnowDepthAttributes,
		TempMax:                 day.TempMax,
		TempMaxAttributes:       day.TempMaxAttributes,
		TempMin:                 day.TempMin,
		TempMinAttributes:       day.TempMinAttributes,
	}
}

func (s *Server) parseDateParam(w http.ResponseWriter, req *http.Request, name string) (time.Time, bool) {
	value := req.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(config.DateFormat, value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+name+" date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorf("error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
