package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"go.uber.org/zap"
)

func testClient(baseURL string, pageSize int) *Client {
	return NewClient(config.APIData{
		BaseURL:  baseURL,
		PageSize: pageSize,
		Timeout:  5 * time.Second,
	}, zap.NewNop().Sugar())
}

func syntheticRecords(n int) []ObservationRecord {
	records := make([]ObservationRecord, n)
	for i := range records {
		records[i] = ObservationRecord{
			Date:     fmt.Sprintf("2023-01-%02dT00:00:00", i+1),
			Datatype: "SNOW",
			Station:  "USW00094728",
			Value:    json.Number(strconv.Itoa(i * 10)),
		}
	}
	return records
}

// paginationHandler serves records page by page using the offset/limit
// protocol and counts the requests it receives.
func paginationHandler(t *testing.T, records []ObservationRecord, requests *int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		*requests++

		offset, err := strconv.Atoi(req.URL.Query().Get("offset"))
		if err != nil {
			t.Errorf("bad offset parameter: %v", err)
		}
		limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
		if err != nil {
			t.Errorf("bad limit parameter: %v", err)
		}

		lo := offset - 1 // the API's offset is 1-based
		hi := lo + limit
		if lo > len(records) {
			lo = len(records)
		}
		if hi > len(records) {
			hi = len(records)
		}

		var page pageResponse
		page.Metadata.Resultset.Offset = offset
		page.Metadata.Resultset.Count = len(records)
		page.Metadata.Resultset.Limit = limit
		page.Results = records[lo:hi]

		json.NewEncoder(w).Encode(page)
	}
}

func TestFetchPaginationComplete(t *testing.T) {
	records := syntheticRecords(5)
	requests := 0
	srv := httptest.NewServer(paginationHandler(t, records, &requests))
	defer srv.Close()

	client := testClient(srv.URL, 2)
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

	got, err := client.FetchAll(context.Background(), "USW00094728", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two full pages and one partial page, no loss, no duplicates
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	seen := make(map[string]bool)
	for i, rec := range got {
		if rec.Date != records[i].Date {
			t.Errorf("record %d: expected date %s, got %s", i, records[i].Date, rec.Date)
		}
		if seen[rec.Date] {
			t.Errorf("duplicate record for %s", rec.Date)
		}
		seen[rec.Date] = true
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
}

func TestFetchSinglePartialPage(t *testing.T) {
	records := syntheticRecords(3)
	requests := 0
	srv := httptest.NewServer(paginationHandler(t, records, &requests))
	defer srv.Close()

	client := testClient(srv.URL, 100)
	got, err := client.FetchAll(context.Background(), "USW00094728",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 records, got %d", len(got))
	}
	if requests != 1 {
		t.Errorf("expected a single page request, got %d", requests)
	}
}

func TestFetchEmptyResult(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(paginationHandler(t, nil, &requests))
	defer srv.Close()

	client := testClient(srv.URL, 100)
	got, err := client.FetchAll(context.Background(), "USW00094728",
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestFetchErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		errorAs func(error) bool
	}{
		{
			name:   "429 is transient",
			status: http.StatusTooManyRequests,
			errorAs: func(err error) bool {
				var e *TransientError
				return errors.As(err, &e)
			},
		},
		{
			name:   "500 is transient",
			status: http.StatusInternalServerError,
			errorAs: func(err error) bool {
				var e *TransientError
				return errors.As(err, &e)
			},
		},
		{
			name:   "400 is invalid request",
			status: http.StatusBadRequest,
			body:   `{"message":"bad station"}`,
			errorAs: func(err error) bool {
				var e *InvalidRequestError
				return errors.As(err, &e)
			},
		},
		{
			name:   "malformed JSON is a schema error",
			status: http.StatusOK,
			body:   `{"results": "not an array"`,
			errorAs: func(err error) bool {
				var e *SchemaError
				return errors.As(err, &e)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := testClient(srv.URL, 10)
			_, err := client.FetchAll(context.Background(), "USW00094728",
				time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.errorAs(err) {
				t.Errorf("wrong error type: %v", err)
			}
		})
	}
}

func TestFetchRejectsBadArguments(t *testing.T) {
	client := testClient("http://localhost:1", 10)

	var invalid *InvalidRequestError

	_, err := client.FetchAll(context.Background(), "",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))
	if !errors.As(err, &invalid) {
		t.Errorf("empty station: expected InvalidRequestError, got %v", err)
	}

	_, err = client.FetchAll(context.Background(), "USW00094728",
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.As(err, &invalid) {
		t.Errorf("inverted range: expected InvalidRequestError, got %v", err)
	}
}

func TestFetchTransportFailureIsTransient(t *testing.T) {
	// Nothing listens here
	client := testClient("http://127.0.0.1:1", 10)

	_, err := client.FetchAll(context.Background(), "USW00094728",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if !transient.Retryable() {
		t.Error("transport failures must be retryable")
	}
}
