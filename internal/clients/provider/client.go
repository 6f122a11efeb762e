// Package provider fetches subject documents from the portrait API.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/observability"
	"github.com/yungbote/healthgraph-etl/internal/platform/ctxutil"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

const portraitPath = "/datafactory/getHealthPortrait"

// maxBody caps a single portrait response.
const maxBody = 32 << 20

type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RPS       float64       `yaml:"rps"`
	Burst     int           `yaml:"burst"`
	Retries   int           `yaml:"retries"`
	RetryBase time.Duration `yaml:"retry_base"`
}

func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, RPS: 10, Burst: 1, Retries: 2, RetryBase: 200 * time.Millisecond}
}

type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
}

func New(cfg Config, log *logger.Logger, metrics *observability.Metrics) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("provider: base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("provider: invalid base url %q", cfg.BaseURL)
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
		log:     log.With("client", "PortraitProvider"),
		metrics: metrics,
	}, nil
}

// Fetch returns the subject's document. Any provider-side failure (transport
// error after retries, non-zero code, undecodable body) is logged and
// reported as (nil, nil) so the caller can treat it as "no data". Only
// context cancellation is returned as an error.
func (c *Client) Fetch(ctx context.Context, subjectID string) (*portrait.Document, error) {
	log := c.log.With(ctxutil.LogKVs(ctxutil.WithSubject(ctx, subjectID))...)

	body, err := c.get(ctx, subjectID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.metrics.IncProviderRequest("transport_error")
		log.Warn("portrait fetch failed", "error", err)
		return nil, nil
	}

	doc, err := portrait.DecodeAny(body)
	switch {
	case err != nil:
		c.metrics.IncProviderRequest("bad_body")
		log.Warn("portrait body undecodable", "error", err)
		return nil, nil
	case doc == nil:
		c.metrics.IncProviderRequest("no_data")
		log.Warn("portrait returned no data")
		return nil, nil
	}
	if !doc.PatientID.Present() {
		doc.PatientID = portrait.FlexString(subjectID)
	}
	c.metrics.IncProviderRequest("ok")
	return doc, nil
}

func (c *Client) endpoint(subjectID string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + portraitPath
	u.RawQuery = url.Values{"patientId": {subjectID}}.Encode()
	return u.String()
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("provider: http %d", e.code) }

func (c *Client) get(ctx context.Context, subjectID string) ([]byte, error) {
	target := c.endpoint(subjectID)
	op := func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode >= 500:
			return nil, &statusError{code: resp.StatusCode}
		case resp.StatusCode >= 300:
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode})
		}
		return b, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryBase
	eb.MaxInterval = 5 * time.Second
	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.cfg.Retries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("provider: get %s: %w", subjectID, err)
	}
	return body, nil
}
