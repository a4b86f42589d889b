// Package gsheet fetches spreadsheet tabs through Google's gviz export
// endpoint. It performs raw HTTP only; parsing lives in the gviz package.
package gsheet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const defaultBase = "https://docs.google.com"

// FetchError reports a failed spreadsheet fetch. Status is the upstream HTTP
// status for non-2xx responses and zero for transport failures. The message
// format for HTTP failures is relied on by the sync orchestrator, which
// classifies 400/404 as acceptable.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("Failed to fetch from Google Sheets: %d", e.Status)
	}
	return fmt.Sprintf("Failed to fetch from Google Sheets: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var sheetLinkPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSheetID pulls the spreadsheet id out of a share link. Returns ""
// when the link does not contain one; callers treat that as "nothing to sync".
func ExtractSheetID(link string) string {
	match := sheetLinkPattern.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}

// Client fetches tab contents for spreadsheets.
type Client struct {
	httpClient *http.Client
	base       string
	attempts   int
}

// New creates a client with the given per-request timeout. attempts below 1
// is treated as a single attempt; the sync pipeline runs with exactly one.
func New(timeout time.Duration, attempts int) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		base:       defaultBase,
		attempts:   attempts,
	}
}

// NewWithBase creates a client pointed at an alternate host, used by tests
// to target an httptest server.
func NewWithBase(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, base: base, attempts: 1}
}

// tabURL builds the gviz export URL for one tab. headers=1 asks the endpoint
// to treat the first row as column labels, which table mode needs and cell
// mode must not set.
func (c *Client) tabURL(sheetID, tab string, headers bool) string {
	u := fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?tqx=out:json&sheet=%s",
		c.base, sheetID, url.QueryEscape(tab))
	if headers {
		u += "&headers=1"
	}
	return u
}

// Fetch performs the GET and returns the raw body text. Responses are never
// cached; the spreadsheet is the source of truth on every cycle.
func (c *Client) Fetch(ctx context.Context, sheetID, tab string, headers bool) (string, error) {
	target := c.tabURL(sheetID, tab, headers)

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		body, err := c.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) fetchOnce(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &FetchError{Err: err}
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Err: err}
	}
	return string(body), nil
}
