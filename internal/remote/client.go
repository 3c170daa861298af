package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
	"github.com/sheetvault/sheetvault/internal/metrics"
	"github.com/sheetvault/sheetvault/internal/models"
)

// Client talks to the spreadsheet provider's REST API. It is transport
// only: retry and refresh policy live in the sync engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics attaches request metrics.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, logger *logging.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs an authenticated GET and maps HTTP failures onto the error
// taxonomy.
func (c *Client) get(ctx context.Context, cred *models.Credential, endpoint string, query url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &errors.ErrRemoteUnavailable{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error", start)
		return nil, &errors.ErrRemoteUnavailable{Err: err}
	}
	defer resp.Body.Close()

	c.observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &errors.ErrRemoteUnavailable{Err: err}
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &errors.ErrUnauthorized{}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &errors.ErrSourceNotFound{SourceID: endpoint}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfterFromHeader(resp.Header)}
	default:
		return nil, &errors.ErrRemoteUnavailable{Status: resp.StatusCode}
	}
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RemoteRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.RemoteLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

type fileListResponse struct {
	Files []struct {
		ID            string    `json:"id"`
		Name          string    `json:"name"`
		ModifiedTime  time.Time `json:"modifiedTime"`
		ThumbnailLink string    `json:"thumbnailLink"`
	} `json:"files"`
}

// ListSources returns the spreadsheets visible to the credential.
func (c *Client) ListSources(ctx context.Context, cred *models.Credential) ([]models.SourceDescriptor, error) {
	query := url.Values{}
	query.Set("q", "mimeType='application/vnd.google-apps.spreadsheet'")
	query.Set("fields", "files(id,name,modifiedTime,thumbnailLink)")

	body, err := c.get(ctx, cred, "/drive/v3/files", query)
	if err != nil {
		return nil, err
	}

	var parsed fileListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errors.ErrRemoteUnavailable{Err: fmt.Errorf("malformed file list: %w", err)}
	}

	sources := make([]models.SourceDescriptor, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		sources = append(sources, models.SourceDescriptor{
			ID:           f.ID,
			Name:         f.Name,
			ModifiedAt:   f.ModifiedTime,
			ThumbnailURL: f.ThumbnailLink,
		})
	}
	return sources, nil
}

type valuesResponse struct {
	StartRow int64      `json:"startRow"`
	Values   [][]string `json:"values"`
}

// ReadRows fetches rows from a sheet range. sinceRow is the watermark: only
// rows with an index greater than it are returned, so a zero watermark
// fetches the full range. Row indexes in the result are absolute.
func (c *Client) ReadRows(ctx context.Context, cred *models.Credential, spreadsheetID, sheetRange string, sinceRow int64) ([]models.RawRow, error) {
	query := url.Values{}
	if sinceRow > 0 {
		query.Set("startRow", strconv.FormatInt(sinceRow+1, 10))
	}

	endpoint := fmt.Sprintf("/sheets/v4/spreadsheets/%s/values/%s",
		url.PathEscape(spreadsheetID), url.PathEscape(sheetRange))
	body, err := c.get(ctx, cred, endpoint, query)
	if err != nil {
		return nil, err
	}

	var parsed valuesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errors.ErrRemoteUnavailable{Err: fmt.Errorf("malformed values response: %w", err)}
	}

	start := parsed.StartRow
	if start == 0 {
		start = 1
	}

	rows := make([]models.RawRow, 0, len(parsed.Values))
	for i, cells := range parsed.Values {
		rows = append(rows, models.RawRow{Index: start + int64(i), Cells: cells})
	}
	return rows, nil
}

// FetchThumbnail downloads a thumbnail image. Best-effort: callers must
// treat failures as non-fatal.
func (c *Client) FetchThumbnail(ctx context.Context, cred *models.Credential, thumbnailURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return nil, &errors.ErrRemoteUnavailable{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.ErrRemoteUnavailable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.ErrRemoteUnavailable{Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
