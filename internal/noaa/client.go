// Package noaa provides a client for the NOAA Climate Data Online API.
package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const datasetID = "GHCND"

// Client fetches daily observation records from the climate-data API.
// It performs no writes; persistence is the orchestrator's concern.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

// NewClient creates a new API client from configuration
func NewClient(cfg config.APIData, logger *zap.SugaredLogger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "noaa",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: cb,
		logger:  logger,
	}
}

// Fetch returns a cursor over all observation records for the station and
// inclusive date range. Pages are fetched lazily as the cursor advances;
// the cursor is not restartable, call Fetch again to re-fetch.
func (c *Client) Fetch(stationID string, start, end time.Time) *Cursor {
	return &Cursor{
		client:    c,
		stationID: stationID,
		start:     start,
		end:       end,
		offset:    1,
	}
}

// FetchAll drains a cursor into a slice
func (c *Client) FetchAll(ctx context.Context, stationID string, start, end time.Time) ([]ObservationRecord, error) {
	cur := c.Fetch(stationID, start, end)
	var records []ObservationRecord
	for cur.Next(ctx) {
		records = append(records, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Cursor iterates lazily over a finite sequence of observation records,
// fetching one page at a time on demand.
type Cursor struct {
	client    *Client
	stationID string
	start     time.Time
	end       time.Time

	offset int
	buf    []ObservationRecord
	pos    int
	done   bool
	err    error
}

// Next advances the cursor, fetching the next page when the current one is
// exhausted. It returns false when the sequence ends or an error occurs.
func (cur *Cursor) Next(ctx context.Context) bool {
	if cur.err != nil {
		return false
	}
	cur.pos++
	if cur.pos < len(cur.buf) {
		return true
	}
	if cur.done {
		return false
	}

	page, err := cur.client.fetchPage(ctx, cur.stationID, cur.start, cur.end, cur.offset)
	if err != nil {
		cur.err = err
		return false
	}

	count := page.Metadata.Resultset.Count
	received := len(page.Results)

	// A short page or reaching the reported total ends the sequence.
	if received < cur.client.pageSize {
		cur.done = true
	}
	cur.offset += received
	if count > 0 && cur.offset > count {
		cur.done = true
	}

	cur.buf = page.Results
	cur.pos = 0
	return received > 0
}

// Record returns the record the cursor is positioned on
func (cur *Cursor) Record() ObservationRecord {
	return cur.buf[cur.pos]
}

// Err returns the error that terminated iteration, if any
func (cur *Cursor) Err() error {
	return cur.err
}

// fetchPage retrieves a single page of results, classifying failures into
// the transient / invalid-request / schema taxonomy.
func (c *Client) fetchPage(ctx context.Context, stationID string, start, end time.Time, offset int) (*pageResponse, error) {
	if stationID == "" {
		return nil, &InvalidRequestError{Reason: "station id is empty"}
	}
	if end.Before(start) {
		return nil, &InvalidRequestError{Reason: fmt.Sprintf("end date %s precedes start date %s",
			end.Format(RequestDateLayout), start.Format(RequestDateLayout))}
	}

	v := url.Values{}
	v.Set("datasetid", datasetID)
	v.Set("stationid", stationID)
	v.Set("startdate", start.Format(RequestDateLayout))
	v.Set("enddate", end.Format(RequestDateLayout))
	v.Set("units", "standard")
	v.Set("limit", strconv.Itoa(c.pageSize))
	v.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, v.Encode()), nil)
	if err != nil {
		return nil, &InvalidRequestError{Reason: err.Error()}
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, &TransientError{Err: doErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &TransientError{Status: resp.StatusCode}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &InvalidRequestError{Status: resp.StatusCode, Reason: string(body)}
		}

		return resp, nil
	})
	if err != nil {
		// An open breaker means the upstream has been failing; report it
		// the same way as the failures that opened it.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	var page pageResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&page); err != nil {
		return nil, &SchemaError{Err: err}
	}

	c.logger.Debugf("fetched page for %s: offset=%d records=%d count=%d",
		stationID, offset, len(page.Results), page.Metadata.Resultset.Count)

	return &page, nil
}
