// Package upload submits record deltas to the batch upload pipeline.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/dimitrije/communities/internal/marc"
	"github.com/go-resty/resty/v2"
)

// Mode is the upload pipeline's merge strategy.
type Mode string

const (
	ModeInsert  Mode = "insert"
	ModeAppend  Mode = "append"
	ModeCorrect Mode = "correct"
	ModeReplace Mode = "replace"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeInsert, ModeAppend, ModeCorrect, ModeReplace:
		return true
	}
	return false
}

const userAgent = "communities-upload/1.0"

// Error is a non-2xx answer from the pipeline.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload: status %d: %s", e.StatusCode, e.Body)
}

type Submitter interface {
	Submit(ctx context.Context, record *marc.Record, mode Mode) error
}

type Client struct {
	http        *resty.Client
	callbackURL string
}

func NewClient(baseURL, callbackURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		callbackURL: callbackURL,
	}
}

// Submit queues record for upload. The pipeline applies it asynchronously;
// a nil error only means the job was accepted.
func (c *Client) Submit(ctx context.Context, record *marc.Record, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("upload: unknown mode %q", mode)
	}

	body, err := record.MARCXML()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/marcxml+xml").
		SetPathParam("mode", string(mode)).
		SetBody(body)
	if c.callbackURL != "" {
		req.SetQueryParam("callback_url", c.callbackURL)
	}

	resp, err := req.Post("/batchuploader/robotupload/{mode}")
	if err != nil {
		return fmt.Errorf("upload: record %d: %w", record.RecID(), err)
	}
	if resp.IsError() {
		return &Error{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
