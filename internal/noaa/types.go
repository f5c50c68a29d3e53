package noaa

import "encoding/json"

// ObservationTimeLayout is the timestamp format used by the daily-summaries
// dataset for the date field.
const ObservationTimeLayout = "2006-01-02T15:04:05"

// RequestDateLayout is the format for startdate/enddate request parameters.
const RequestDateLayout = "2006-01-02"

// ObservationRecord is one (station, date, datatype) tuple as returned by
// the climate-data API. Values arrive as scaled integers or decimal numbers
// depending on datatype, so the raw number is carried through untouched.
type ObservationRecord struct {
	Date       string      `json:"date"`
	Datatype   string      `json:"datatype"`
	Station    string      `json:"station"`
	Attributes string      `json:"attributes"`
	Value      json.Number `json:"value"`
}

// pageResponse models one page of the API's paginated response envelope.
type pageResponse struct {
	Metadata struct {
		Resultset struct {
			Offset int `json:"offset"`
			Count  int `json:"count"`
			Limit  int `json:"limit"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []ObservationRecord `json:"results"`
}
