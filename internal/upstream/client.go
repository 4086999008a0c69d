// Package upstream fetches raw daily and intraday data from the Oura v2 API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/ratelimit"
	"github.com/pysugar/oura-twin-sync/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.ouraring.com/v2"
	DefaultTimeout = 30 * time.Second
	UserAgent      = "oura-twin-sync"

	dateLayout = "2006-01-02"
)

// Source is one upstream collection.
type Source string

const (
	SourceSpO2       Source = "daily_spo2"
	SourceSleep      Source = "sleep"
	SourceDailySleep Source = "daily_sleep"
	SourceCardioAge  Source = "daily_cardiovascular_age"
	SourceReadiness  Source = "daily_readiness"
	SourceHeartRate  Source = "heartrate"
)

// DailySources lists the five per-day collections in a stable order.
func DailySources() []Source {
	return []Source{SourceSpO2, SourceSleep, SourceDailySleep, SourceCardioAge, SourceReadiness}
}

// Path is the collection path below the API base.
func (s Source) Path() string {
	return "/usercollection/" + string(s)
}

// Record is one raw JSON object from a collection's data array.
type Record = map[string]interface{}

// DailyBundle holds the raw arrays of one twin's daily fetch. A nil entry means absent.
type DailyBundle struct {
	Twin        identity.Identity
	Data        map[Source][]Record
	Skipped     []Source
	RateLimited bool
	RetryAfter  time.Duration
}

// Records returns the raw array for s, nil when absent.
func (b DailyBundle) Records(s Source) []Record {
	return b.Data[s]
}

// IntradaySample is one heart-rate reading.
type IntradaySample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       float64   `json:"bpm"`
	Source    string    `json:"source,omitempty"`
}

// TokenProvider hands out a valid access token for a twin.
type TokenProvider interface {
	AccessToken(ctx context.Context, id identity.Identity) (string, bool)
}

// Client issues rate-limited GET calls against the data API. There are no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	limiter    ratelimit.Limiter
	timeout    time.Duration
	monitor    *monitor.FetchMonitor
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithMonitor(m *monitor.FetchMonitor) Option {
	return func(cl *Client) { cl.monitor = m }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) { cl.log = log.With().Str("component", "upstream").Logger() }
}

// NewClient creates a data client rooted at baseURL.
func NewClient(baseURL string, tokens TokenProvider, limiter ratelimit.Limiter, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		limiter:    limiter,
		timeout:    DefaultTimeout,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDaily fetches the five daily collections for [start, end] concurrently. Failed
// collections are absent from the bundle. The returned error is ErrNotConnected or, when
// any collection answered 429, a *RateLimitError; the bundle is usable in both 429 cases.
func (c *Client) FetchDaily(ctx context.Context, id identity.Identity, start, end time.Time) (DailyBundle, error) {
	bundle := DailyBundle{Twin: id, Data: make(map[Source][]Record, 5)}

	accessToken, ok := c.tokens.AccessToken(ctx, id)
	if !ok {
		return bundle, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}

	params := url.Values{}
	params.Set("start_date", start.Format(dateLayout))
	params.Set("end_date", end.Format(dateLayout))

	sources := DailySources()
	results := make([][]Record, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i], errs[i] = c.getCollection(ctx, id, src, accessToken, params)
			return nil
		})
	}
	_ = g.Wait()

	var rateErr *RateLimitError
	for i, src := range sources {
		if errs[i] == nil {
			bundle.Data[src] = results[i]
			continue
		}
		var rle *RateLimitError
		switch {
		case errors.Is(errs[i], ErrLocalRateLimitExceeded):
			bundle.Skipped = append(bundle.Skipped, src)
		case errors.As(errs[i], &rle):
			bundle.RateLimited = true
			if rle.RetryAfter > bundle.RetryAfter {
				bundle.RetryAfter = rle.RetryAfter
			}
			if rateErr == nil {
				rateErr = rle
			}
		}
	}

	if rateErr != nil {
		return bundle, rateErr
	}
	return bundle, nil
}

// FetchIntraday returns heart-rate samples for the last hours hours in source order.
// Any failure yields an empty slice.
func (c *Client) FetchIntraday(ctx context.Context, id identity.Identity, hours int) []IntradaySample {
	accessToken, ok := c.tokens.AccessToken(ctx, id)
	if !ok {
		return []IntradaySample{}
	}
	if hours <= 0 {
		hours = 4
	}

	end := c.now()
	params := url.Values{}
	params.Set("start_datetime", end.Add(-time.Duration(hours)*time.Hour).Format(time.RFC3339))
	params.Set("end_datetime", end.Format(time.RFC3339))

	var payload struct {
		Data []IntradaySample `json:"data"`
	}
	if err := c.get(ctx, id, SourceHeartRate, accessToken, params, &payload); err != nil {
		return []IntradaySample{}
	}
	if payload.Data == nil {
		return []IntradaySample{}
	}
	return payload.Data
}

func (c *Client) getCollection(ctx context.Context, id identity.Identity, src Source, accessToken string, params url.Values) ([]Record, error) {
	var payload struct {
		Data []Record `json:"data"`
	}
	if err := c.get(ctx, id, src, accessToken, params, &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return []Record{}, nil
	}
	return payload.Data, nil
}

// get performs one limiter-gated GET and decodes the body into out on 200.
func (c *Client) get(ctx context.Context, id identity.Identity, src Source, accessToken string, params url.Values, out interface{}) error {
	log := logging.FromContext(ctx, c.log).With().Str("twin", id.String()).Str("source", string(src)).Logger()
	ev := monitor.FetchEvent{Twin: id.String(), Source: string(src)}

	if !c.limiter.CheckAndConsume(ctx) {
		ev.Outcome = monitor.OutcomeSkipped
		c.monitor.Record(ev)
		log.Warn().Msg("local request budget exhausted, skipping")
		return ErrLocalRateLimitExceeded
	}

	started := time.Now()
	status, err := c.do(ctx, src, accessToken, params, out)
	ev.Status = status
	ev.DurationMs = time.Since(started).Milliseconds()

	switch {
	case err == nil:
		ev.Outcome = monitor.OutcomeOK
	case errors.Is(err, ErrAPIRateLimited):
		ev.Outcome = monitor.OutcomeRateLimited
		log.Warn().Err(err).Msg("upstream rate limited")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ev.Outcome = monitor.OutcomeAbsent
		log.Debug().Int("status", status).Msg("collection not authorized for this twin")
	default:
		ev.Outcome = monitor.OutcomeError
		log.Debug().Err(err).Int("status", status).Msg("collection unavailable")
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.monitor.Record(ev)
	return err
}

func (c *Client) do(ctx context.Context, src Source, accessToken string, params url.Values, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + src.Path() + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrDataAbsent, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if rid := logging.GetRequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: request failed: %v", ErrDataAbsent, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrDataAbsent, src, err)
		}
		return resp.StatusCode, nil
	case http.StatusTooManyRequests:
		return resp.StatusCode, &RateLimitError{Source: src, RetryAfter: ParseRetryAfter(resp, c.now())}
	default:
		return resp.StatusCode, fmt.Errorf("%w: %s returned HTTP %d: %s", ErrDataAbsent, src, resp.StatusCode, util.BodySnippet(resp.Body))
	}
}
