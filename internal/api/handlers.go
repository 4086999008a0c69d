package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pysugar/oura-twin-sync/internal/auth/oura"
	"github.com/pysugar/oura-twin-sync/internal/auth/token"
	"github.com/pysugar/oura-twin-sync/internal/logging"
	"github.com/pysugar/oura-twin-sync/internal/monitor"
	"github.com/pysugar/oura-twin-sync/internal/pipeline"
	"github.com/pysugar/oura-twin-sync/internal/ratelimit"
	"github.com/pysugar/oura-twin-sync/internal/version"
	"github.com/rs/zerolog"
)

type handlers struct {
	flow          *oura.Flow
	pipeline      *pipeline.Service
	limiter       ratelimit.Limiter
	monitor       *monitor.FetchMonitor
	intradayHours int
	log           zerolog.Logger
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	if oura.IsCallback(r) {
		h.flow.ServeCallback(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "oura-twin-sync",
		"version":    version.Version,
		"configured": h.flow.Credentials().IsConfigured(r.Context()),
		"twins":      h.flow.Status(r.Context()),
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listTwins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"twins": h.flow.Status(r.Context()),
	})
}

func (h *handlers) refreshTwin(w http.ResponseWriter, r *http.Request) {
	id, ok := twinParam(w, r)
	if !ok {
		return
	}
	if !h.flow.Refresh(r.Context(), id) {
		writeError(w, http.StatusBadGateway, "token refresh failed for "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"twin":   id.String(),
	})
}

func (h *handlers) disconnectTwin(w http.ResponseWriter, r *http.Request) {
	id, ok := twinParam(w, r)
	if !ok {
		return
	}
	if err := h.flow.Disconnect(r.Context(), id); err != nil {
		log := logging.FromContext(r.Context(), h.log)
		log.Error().Err(err).Str("twin", id.String()).Msg("Disconnect failed")
		writeError(w, http.StatusInternalServerError, "failed to disconnect "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"twin":   id.String(),
	})
}

func (h *handlers) daily(w http.ResponseWriter, r *http.Request) {
	id, ok := twinParam(w, r)
	if !ok {
		return
	}
	start, end, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.pipeline.Daily(r.Context(), id, start, end))
}

func (h *handlers) intraday(w http.ResponseWriter, r *http.Request) {
	id, ok := twinParam(w, r)
	if !ok {
		return
	}
	hours := h.intradayHours
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 24 {
			writeError(w, http.StatusBadRequest, "hours must be an integer between 1 and 24")
			return
		}
		hours = n
	}
	samples := h.pipeline.Intraday(r.Context(), id, hours)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"twin":    id,
		"hours":   hours,
		"samples": samples,
		"count":   len(samples),
	})
}

func (h *handlers) compare(w http.ResponseWriter, r *http.Request) {
	start, end, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports := h.pipeline.Compare(r.Context(), start, end)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"twins": reports,
	})
}

type credentialsRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

func (h *handlers) getCredentials(w http.ResponseWriter, r *http.Request) {
	cred := h.flow.Credentials().Load(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured":   cred.Configured(),
		"client_id":    maskSecret(cred.ClientID),
		"redirect_uri": cred.RedirectURI,
	})
}

func (h *handlers) saveCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		writeError(w, http.StatusBadRequest, "client_id and client_secret are required")
		return
	}

	cred := token.Credential{ClientID: req.ClientID, ClientSecret: req.ClientSecret, RedirectURI: req.RedirectURI}
	if err := h.flow.Credentials().Save(r.Context(), cred); err != nil {
		log := logging.FromContext(r.Context(), h.log)
		log.Error().Err(err).Msg("Saving credentials failed")
		writeError(w, http.StatusInternalServerError, "failed to save credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) clearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Credentials().Clear(r.Context()); err != nil {
		log := logging.FromContext(r.Context(), h.log)
		log.Error().Err(err).Msg("Clearing credentials failed")
		writeError(w, http.StatusInternalServerError, "failed to clear credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) rateLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.limiter.Status(r.Context()))
}

func (h *handlers) monitorStats(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	events := h.monitor.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  h.monitor.Stats(),
		"events": events,
		"count":  len(events),
	})
}

func (h *handlers) clearMonitor(w http.ResponseWriter, _ *http.Request) {
	h.monitor.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
