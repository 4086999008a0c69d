package scheduler

import (
	"context"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/rs/zerolog"
)

// Validator checks a twin's token and refreshes it when expired.
type Validator interface {
	IsValid(ctx context.Context, id identity.Identity) bool
}

// TokenSweep keeps both twins' tokens fresh between user requests.
type TokenSweep struct {
	validator Validator
	schedule  string
	log       zerolog.Logger
}

func NewTokenSweep(v Validator, schedule string, log zerolog.Logger) *TokenSweep {
	return &TokenSweep{validator: v, schedule: schedule, log: log}
}

func (j *TokenSweep) Name() string     { return "token_sweep" }
func (j *TokenSweep) Schedule() string { return j.schedule }

// Run validates each twin in order. A twin without a valid token is logged, not failed.
func (j *TokenSweep) Run(ctx context.Context) error {
	var stale []string
	for _, id := range identity.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if j.validator.IsValid(ctx, id) {
			j.log.Debug().Str("twin", id.String()).Msg("Token valid")
			continue
		}
		stale = append(stale, id.String())
	}
	if len(stale) > 0 {
		j.log.Info().Strs("twins", stale).Msg("Twins without a valid token")
	}
	return nil
}

