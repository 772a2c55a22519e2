package drugverify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Result is the best match for a free-text medication name
type Result struct {
	Verified    bool    `json:"verified"`
	MatchedName string  `json:"matched_name,omitempty"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Verifier resolves a free-text medication name against a drug reference
// service. Failures must degrade gracefully: callers treat an error as
// "unverified" and continue.
type Verifier interface {
	Verify(ctx context.Context, name string) (*Result, error)
}

// Config for the verification client
type Config struct {
	BaseURL   string
	Retries   int
	RetryWait time.Duration
	Timeout   time.Duration
}

// Client calls an external drug-name verification service over HTTP with
// bounded retries and exponential backoff
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient builds the verification client. Retries cap at the configured
// count with exponentially growing waits between attempts.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(retries - 1).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait * 8)

	return &Client{
		http:   http,
		logger: logger.With().Str("component", "drugverify").Logger(),
	}
}

type verifyResponse struct {
	Match struct {
		Name        string  `json:"name"`
		ReferenceID string  `json:"reference_id"`
		Confidence  float64 `json:"confidence"`
	} `json:"match"`
}

// Verify looks up the best match for a medication name
func (c *Client) Verify(ctx context.Context, name string) (*Result, error) {
	var body verifyResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetResult(&body).
		Get("/v1/drugs/match")
	if err != nil {
		return nil, fmt.Errorf("drug verification request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("drug verification returned status %d", resp.StatusCode())
	}

	result := &Result{
		Verified:    body.Match.Confidence >= 0.8,
		MatchedName: body.Match.Name,
		ReferenceID: body.Match.ReferenceID,
		Confidence:  body.Match.Confidence,
	}

	c.logger.Debug().
		Str("name", name).
		Str("matched", result.MatchedName).
		Float64("confidence", result.Confidence).
		Msg("drug name verified")

	return result, nil
}

// Unverified is a Verifier that always reports no match. Used when no
// verification service is configured.
type Unverified struct{}

func (Unverified) Verify(ctx context.Context, name string) (*Result, error) {
	return &Result{Verified: false, Confidence: 0}, nil
}
