package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledger/internal/core"
)

// APIError is a non-2xx answer from the ledger server.
type APIError struct {
	Status  int
	Message string
	Field   string
	Outcome string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (field %s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Duplicate reports whether the server rejected a submission as a duplicate.
func (e *APIError) Duplicate() bool {
	return e.Outcome == "duplicate"
}

// AddRequest is the body of POST /records.
type AddRequest struct {
	Title     string     `json:"title"`
	Amount    string     `json:"amount"`
	Category  string     `json:"category"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Client talks to the ledger HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Add(ctx context.Context, req AddRequest) (core.Record, error) {
	var out struct {
		Record core.Record `json:"record"`
	}
	err := c.do(ctx, http.MethodPost, "/records", nil, req, &out)
	return out.Record, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/records/%d", id), nil, nil, nil)
}

func (c *Client) List(ctx context.Context, day, search, grouping string) (core.ListView, error) {
	q := url.Values{}
	setIf(q, "day", day)
	setIf(q, "search", search)
	setIf(q, "grouping", grouping)
	var v core.ListView
	err := c.do(ctx, http.MethodGet, "/views/list", q, nil, &v)
	return v, err
}

func (c *Client) Totals(ctx context.Context, day, search string) (core.Totals, error) {
	q := url.Values{}
	setIf(q, "day", day)
	setIf(q, "search", search)
	var t core.Totals
	err := c.do(ctx, http.MethodGet, "/views/totals", q, nil, &t)
	return t, err
}

func (c *Client) Report(ctx context.Context) (core.Report, error) {
	var r core.Report
	err := c.do(ctx, http.MethodGet, "/views/report", nil, nil, &r)
	return r, err
}

func (c *Client) Today(ctx context.Context) (core.Totals, error) {
	var t core.Totals
	err := c.do(ctx, http.MethodGet, "/views/today", nil, nil, &t)
	return t, err
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Field   string `json:"field"`
			Outcome string `json:"outcome"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Field: e.Field, Outcome: e.Outcome}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
