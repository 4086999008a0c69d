package oura

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
)

// CallbackTimeout is how long the CLI waits for the browser to come back.
const CallbackTimeout = 5 * time.Minute

// CallbackResult is the outcome of one authorization redirect.
type CallbackResult struct {
	Twin identity.Identity
	Err  error
}

// StartCallbackServer listens on the host and port of redirectURI and completes the first
// authorization response that arrives. The result channel receives exactly one value.
func (f *Flow) StartCallbackServer(redirectURI string) (<-chan CallbackResult, func(), error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	f.log.Info().Str("addr", listener.Addr().String()).Str("path", path).Msg("callback server listening")

	results := make(chan CallbackResult, 1)
	var once sync.Once
	deliver := func(res CallbackResult) {
		once.Do(func() { results <- res })
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !IsCallback(r) {
			http.NotFound(w, r)
			return
		}
		id, err := f.ServeCallback(w, r)
		deliver(CallbackResult{Twin: id, Err: err})
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error().Err(err).Msg("callback server error")
			deliver(CallbackResult{Err: err})
		}
	}()

	var stopOnce sync.Once
	cleanup := func() {
		stopOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				f.log.Warn().Err(err).Msg("shutting down callback server")
			}
		})
	}
	return results, cleanup, nil
}
