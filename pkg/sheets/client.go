// Package sheets pulls feed tabs from the Google Sheets values API.
// Several funnel feeds live as shared spreadsheets; their sources are
// configured as sheet: references or full docs.google.com URLs.
package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// defaultRange covers every populated column of the first tab; tab-
// scoped refs override it.
const defaultRange = "A:ZZ"

// Client performs Google Sheets API operations.
type Client interface {
	// Values reads one range of a spreadsheet as raw records.
	Values(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)

	// ReadTable resolves a sheet reference (sheet:<id>[/<range>] or a
	// docs.google.com URL) and reads it.
	ReadTable(ctx context.Context, ref string) ([][]string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Sheets API client authenticated by API key.
// Reads are throttled to 1 req/s, matching the per-user read quota.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type valuesResponse struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

func (c *httpClient) Values(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	if spreadsheetID == "" {
		return nil, eris.New("sheets: empty spreadsheet id")
	}
	if readRange == "" {
		readRange = defaultRange
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sheets: rate limit")
	}

	endpoint := c.baseURL + "/spreadsheets/" + url.PathEscape(spreadsheetID) +
		"/values/" + url.PathEscape(readRange) + "?key=" + url.QueryEscape(c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sheets: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result valuesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal response")
	}

	return result.Values, nil
}

func (c *httpClient) ReadTable(ctx context.Context, ref string) ([][]string, error) {
	id, readRange, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	return c.Values(ctx, id, readRange)
}

// ParseRef splits a sheet reference into spreadsheet ID and range.
// Accepted forms:
//
//	sheet:<id>
//	sheet:<id>/<range>
//	https://docs.google.com/spreadsheets/d/<id>/...
//
// A missing range reads the first tab.
func ParseRef(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)

	if rest, ok := strings.CutPrefix(ref, "sheet:"); ok {
		id, readRange, _ := strings.Cut(rest, "/")
		if id == "" {
			return "", "", eris.Errorf("sheets: empty spreadsheet id in %q", ref)
		}
		return id, readRange, nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host != "docs.google.com" {
		return "", "", eris.Errorf("sheets: unrecognized reference %q", ref)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Path shape: spreadsheets/d/<id>/...
	if len(parts) < 3 || parts[0] != "spreadsheets" || parts[1] != "d" || parts[2] == "" {
		return "", "", eris.Errorf("sheets: no spreadsheet id in %q", ref)
	}
	return parts[2], "", nil
}
