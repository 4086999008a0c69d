package oura

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/pysugar/oura-twin-sync/internal/identity"
)

// HandleCallback completes the authorization redirect and stores the twin's tokens.
func HandleCallback(flow *Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow.ServeCallback(w, r)
	}
}

// IsCallback reports whether r carries an authorization response.
func IsCallback(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("code") != "" || q.Get("error") != ""
}

// ServeCallback handles one authorization response, writes the result page and returns
// the connected twin or the failure.
func (f *Flow) ServeCallback(w http.ResponseWriter, r *http.Request) (identity.Identity, error) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = e
		}
		err := fmt.Errorf("authorization denied: %s", desc)
		writeResultPage(w, http.StatusBadRequest, "Authorization failed", desc)
		return "", err
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeResultPage(w, http.StatusBadRequest, "Authorization failed", "Missing code or state parameter.")
		return "", fmt.Errorf("%w: missing code or state", ErrInvalidState)
	}

	id, err := f.CompleteAuthorization(r.Context(), state, code)
	if err != nil {
		f.log.Warn().Err(err).Msg("authorization callback failed")
		switch {
		case errors.Is(err, ErrCredentialsMissing):
			writeResultPage(w, http.StatusPreconditionFailed, "Authorization failed", "Client credentials are not configured.")
		case errors.Is(err, ErrInvalidState):
			writeResultPage(w, http.StatusBadRequest, "Authorization failed", "The state parameter does not match this deployment. Start the login again.")
		case errors.Is(err, ErrAuthCodeInvalidOrReused):
			writeResultPage(w, http.StatusBadRequest, "Authorization code expired", "This code was already used, usually because the page was reloaded. Start the login again.")
		default:
			writeResultPage(w, http.StatusBadGateway, "Authorization failed", err.Error())
		}
		return id, err
	}

	writeResultPage(w, http.StatusOK, "Connected", id.Label()+" is now connected to Oura.")
	return id, nil
}

func writeResultPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>%s</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		h1 { font-size: 24px; }
	</style>
</head>
<body>
	<h1>%s</h1>
	<p>%s</p>
	<p>You can close this window.</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
