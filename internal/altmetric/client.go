// Package altmetric is a small client for the Altmetric details API.
package altmetric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotConfigured = errors.New("altmetric: client not configured")

// HTTPError is returned for any answer other than 200 or 404.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("altmetric: status %d: %s", e.StatusCode, e.Message)
}

// Citation is the subset of the details response we use.
type Citation struct {
	AltmetricID int64   `json:"altmetric_id"`
	DOI         string  `json:"doi"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
	DetailsURL  string  `json:"details_url"`
}

type Client struct {
	http   *resty.Client
	apiKey string
	log    *slog.Logger
}

// NewClient returns nil when baseURL is empty; callers treat a nil client
// as "service unavailable".
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		apiKey: apiKey,
		log:    logger.With("adapter", "altmetric"),
	}
}

// LookupDOI fetches the citation for doi. Returns nil, nil when Altmetric
// has no data for it.
func (c *Client) LookupDOI(ctx context.Context, doi string) (*Citation, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	var citation Citation
	req := c.http.R().
		SetContext(ctx).
		SetRawPathParam("doi", escapeDOI(doi)).
		SetResult(&citation)
	if c.apiKey != "" {
		req.SetQueryParam("key", c.apiKey)
	}

	resp, err := req.Get("/doi/{doi}")
	if err != nil {
		return nil, fmt.Errorf("altmetric: request failed: %w", err)
	}

	c.log.DebugContext(ctx, "altmetric response",
		slog.String("doi", doi),
		slog.Int("status", resp.StatusCode()),
	)

	switch resp.StatusCode() {
	case http.StatusOK:
		return &citation, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
}

// escapeDOI escapes every path segment of a DOI, keeping the separating
// slashes.
func escapeDOI(doi string) string {
	segments := strings.Split(strings.TrimSpace(doi), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
