// Package pipeline ties token lookup, fetching and normalization together per twin.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/pysugar/oura-twin-sync/internal/normalize"
	"github.com/pysugar/oura-twin-sync/internal/upstream"
	"github.com/rs/zerolog"
)

const DefaultRangeDays = 14

// Fetcher is the subset of upstream.Client the pipeline drives.
type Fetcher interface {
	FetchDaily(ctx context.Context, id identity.Identity, start, end time.Time) (upstream.DailyBundle, error)
	FetchIntraday(ctx context.Context, id identity.Identity, hours int) []upstream.IntradaySample
}

// TwinReport is the outcome of one twin's daily run.
type TwinReport struct {
	Identity    identity.Identity  `json:"twin"`
	Label       string             `json:"label"`
	Connected   bool               `json:"connected"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
	Table       normalize.Table    `json:"days"`
	Snapshot    normalize.Snapshot `json:"snapshot"`
	LowSpO2     bool               `json:"low_spo2"`
	Skipped     []upstream.Source  `json:"skipped,omitempty"`
	RateLimited bool               `json:"rate_limited"`
	RetryAfter  float64            `json:"retry_after_seconds,omitempty"`
}

type Service struct {
	fetcher   Fetcher
	log       zerolog.Logger
	rangeDays int
	now       func() time.Time
}

type Option func(*Service)

func WithRangeDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.rangeDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(fetcher Fetcher, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher:   fetcher,
		log:       log.With().Str("component", "pipeline").Logger(),
		rangeDays: DefaultRangeDays,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultRange is [today - days, today] in now's location.
func DefaultRange(now time.Time, days int) (time.Time, time.Time) {
	if days <= 0 {
		days = DefaultRangeDays
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -days), today
}

// Range returns the service's default date range relative to its clock.
func (s *Service) Range() (time.Time, time.Time) {
	return DefaultRange(s.now(), s.rangeDays)
}

// Daily fetches and normalizes one twin. Zero start or end falls back to the default range.
// An unconnected twin yields an empty table and a null snapshot.
func (s *Service) Daily(ctx context.Context, id identity.Identity, start, end time.Time) TwinReport {
	defStart, defEnd := s.Range()
	if start.IsZero() {
		start = defStart
	}
	if end.IsZero() {
		end = defEnd
	}

	report := TwinReport{
		Identity: id,
		Label:    id.Label(),
		Start:    start.Format("2006-01-02"),
		End:      end.Format("2006-01-02"),
		Table:    normalize.Table{},
	}

	log := logging.FromContext(ctx, s.log).With().Str("twin", id.String()).Logger()

	bundle, err := s.fetcher.FetchDaily(ctx, id, start, end)
	if errors.Is(err, upstream.ErrNotConnected) {
		log.Debug().Msg("Twin not connected, skipping fetch")
		return report
	}
	report.Connected = true

	var rle *upstream.RateLimitError
	if errors.As(err, &rle) {
		log.Warn().Dur("retry_after", bundle.RetryAfter).Msg("Upstream rate limit hit")
	} else if err != nil {
		log.Warn().Err(err).Msg("Daily fetch failed")
	}

	report.Table = normalize.Normalize(bundle)
	report.Snapshot = normalize.Latest(report.Table)
	report.LowSpO2 = report.Snapshot.LowSpO2()
	report.Skipped = bundle.Skipped
	report.RateLimited = bundle.RateLimited
	report.RetryAfter = bundle.RetryAfter.Seconds()

	log.Info().
		Int("days", len(report.Table)).
		Int("skipped", len(report.Skipped)).
		Bool("rate_limited", report.RateLimited).
		Msg("Daily data normalized")
	return report
}

// Compare runs Daily for twin A then twin B.
func (s *Service) Compare(ctx context.Context, start, end time.Time) [2]TwinReport {
	var out [2]TwinReport
	for i, id := range identity.All() {
		out[i] = s.Daily(ctx, id, start, end)
	}
	return out
}

// Intraday returns recent heart-rate samples, never nil.
func (s *Service) Intraday(ctx context.Context, id identity.Identity, hours int) []upstream.IntradaySample {
	samples := s.fetcher.FetchIntraday(ctx, id, hours)
	if samples == nil {
		return []upstream.IntradaySample{}
	}
	return samples
}
