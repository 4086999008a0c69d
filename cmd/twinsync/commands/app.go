package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/auth/oura"
	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"github.com/pysugar/oura-twin-sync/internal/config"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/pipeline"
	"github.com/pysugar/oura-twin-sync/internal/ratelimit"
	"github.com/pysugar/oura-twin-sync/internal/store"
	"github.com/pysugar/oura-twin-sync/internal/upstream"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	flow     *oura.Flow
	limiter  ratelimit.Limiter
	monitor  *monitor.FetchMonitor
	client   *upstream.Client
	pipeline *pipeline.Service

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := logging.Init(cfg.Log.Level, cfg.Log.Format)

	a := &app{cfg: cfg, log: log, monitor: monitor.NewFetchMonitor()}

	backend, closeStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	creds := token.NewCredentialStore(backend, cfg.OAuth.DefaultRedirectURI, log)
	creds.OverrideCredentials(token.Credential{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
	})
	tokens := token.NewTokenStore(backend, log)

	opts := []oura.Option{}
	if cfg.OAuth.StateMode == "nonce" {
		var pending oura.PendingStore = oura.NewMemoryStateStore()
		if cfg.OAuth.StateStore == "redis" {
			pending = oura.NewRedisStateStore(rdb)
		}
		opts = append(opts, oura.WithStateIssuer(oura.NewNonceStates(pending, oura.DefaultStateTTL)))
	}
	endpoints := oura.Endpoints{
		AuthURL:  cfg.OAuth.AuthURL,
		TokenURL: cfg.OAuth.TokenURL,
		Scopes:   cfg.OAuth.ScopeList(),
	}
	a.flow = oura.NewFlow(creds, tokens, endpoints, log, opts...)

	if cfg.RateLimit.Backend == "redis" {
		a.limiter = ratelimit.NewRedisLimiter(rdb, ratelimit.DefaultRedisKey, cfg.RateLimit.Capacity, cfg.RateLimit.Window, log)
	} else {
		a.limiter = ratelimit.NewFixedWindow(cfg.RateLimit.Capacity, cfg.RateLimit.Window)
	}

	a.client = upstream.NewClient(cfg.OAuth.APIBase, a.flow, a.limiter,
		upstream.WithTimeout(cfg.Fetch.Timeout),
		upstream.WithMonitor(a.monitor),
		upstream.WithLogger(log),
	)
	a.pipeline = pipeline.NewService(a.client, log, pipeline.WithRangeDays(cfg.Fetch.DefaultRangeDays))

	log.Debug().
		Str("storage", cfg.Storage.Backend).
		Str("limiter", cfg.RateLimit.Backend).
		Str("state_mode", cfg.OAuth.StateMode).
		Msg("Components initialized")
	return a, nil
}

// Close releases storage and Redis connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
