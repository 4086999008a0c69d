package oura

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oura-twin-sync/internal/identity"
)

// HandleLogin redirects the browser to the Oura consent page for the {twin} in the path.
func HandleLogin(flow *Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.Parse(chi.URLParam(r, "twin"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		url, err := flow.AuthorizationURL(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrCredentialsMissing) {
				http.Error(w, "Save the Oura client credentials before connecting a twin", http.StatusPreconditionFailed)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}
