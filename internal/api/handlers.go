package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/gads"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/pkg/httputil"
	"github.com/ignite/gads-reporter/internal/pkg/logger"
	"github.com/ignite/gads-reporter/internal/queue"
	"github.com/ignite/gads-reporter/internal/reporter"
	"github.com/ignite/gads-reporter/internal/settings"
)

// Handlers holds the admin API handler dependencies.
type Handlers struct {
	settings settings.Store
	google   *reporter.GoogleAds
	jobs     *queue.Store
	trigger  *queue.RedisTrigger
	tokens   kvstore.Store
	dlog     *diaglog.Logger
	gadsCfg  config.GoogleAdsConfig
}

// NewHandlers wires the admin API handlers.
func NewHandlers(store settings.Store, google *reporter.GoogleAds, jobs *queue.Store, trigger *queue.RedisTrigger, tokens kvstore.Store, dlog *diaglog.Logger, gadsCfg config.GoogleAdsConfig) *Handlers {
	return &Handlers{
		settings: store,
		google:   google,
		jobs:     jobs,
		trigger:  trigger,
		tokens:   tokens,
		dlog:     dlog,
		gadsCfg:  gadsCfg,
	}
}

// HealthCheck responds with service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSettings returns the current settings record, defaults merged.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.GetAll(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, s)
}

// SaveSettings replaces the settings record and fires the credential-restore
// trigger: the credential-error flag is cleared on every save, and failed
// jobs are reset for reprocessing once configuration is complete.
func (h *Handlers) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var s settings.Settings
	if !httputil.Decode(w, r, &s) {
		return
	}

	ctx := r.Context()
	if err := h.settings.Save(ctx, s); err != nil {
		httputil.InternalError(w, err)
		return
	}

	if err := h.google.OnSettingsSaved(ctx, s); err != nil {
		// Settings are saved; a reset failure only delays reprocessing
		// until the next poll.
		logger.Warn("api: post-save reset failed", "error", err)
	}

	h.dlog.Info("settings saved (client " + diaglog.Mask(s.ClientID) + ")")
	saved, err := h.settings.GetAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, saved)
}

// statusResponse is the admin dashboard snapshot.
type statusResponse struct {
	Configured           bool             `json:"configured"`
	CredentialError      bool             `json:"credential_error"`
	CredentialErrorCause string           `json:"credential_error_cause,omitempty"`
	Jobs                 map[string]int64 `json:"jobs"`
}

// GetStatus reports configuration state, the credential-error flag, and
// queue depth per status. This is what renders the persistent admin notice.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.settings.GetAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	resp := statusResponse{Configured: s.IsConfigured()}
	if cause, ok := h.google.CredentialError(ctx); ok {
		resp.CredentialError = true
		resp.CredentialErrorCause = cause
	}

	if h.jobs != nil {
		counts, err := h.jobs.CountByStatus(ctx)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		resp.Jobs = counts
	}

	httputil.OK(w, resp)
}

// TestConnection validates the currently saved credentials against the
// Google Ads API (fresh token refresh plus conversion-action lookup).
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.settings.GetAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	client := gads.NewClient(gads.Credentials{
		CustomerID:         s.CustomerID,
		DeveloperToken:     s.DeveloperToken,
		ClientID:           s.ClientID,
		ClientSecret:       s.ClientSecret,
		RefreshToken:       s.RefreshToken,
		LoginCustomerID:    s.LoginCustomerID,
		ConversionActionID: s.ConversionActionID,
	}, h.gadsCfg, h.tokens, h.dlog)

	result := client.TestConnection(ctx)
	if result.Success {
		h.dlog.Info("connection test succeeded")
	} else {
		h.dlog.Error("connection test failed: " + result.Error)
	}
	httputil.OK(w, result)
}

// createActionRequest is the conversion-action creation body.
type createActionRequest struct {
	Name         string  `json:"name"`
	DefaultValue float64 `json:"default_value"`
	CurrencyCode string  `json:"currency_code"`
	Category     string  `json:"category"`
}

// CreateConversionAction creates an upload-clicks conversion action in the
// configured account.
func (h *Handlers) CreateConversionAction(w http.ResponseWriter, r *http.Request) {
	var req createActionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	ctx := r.Context()
	s, err := h.settings.GetAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	if req.CurrencyCode == "" {
		req.CurrencyCode = s.CurrencyCode
	}

	client := h.clientFromSettings(s)
	result := client.CreateConversionAction(ctx, req.Name, req.DefaultValue, req.CurrencyCode, req.Category)
	httputil.OK(w, result)
}

// GetConversionAction fetches a conversion action's name and category by id,
// for form auto-population.
func (h *Handlers) GetConversionAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	ctx := r.Context()
	s, err := h.settings.GetAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	client := h.clientFromSettings(s)
	result := client.FetchConversionActionDetails(ctx, actionID)
	httputil.OK(w, result)
}

// IngestConversions accepts one attribution event, enqueues a payload per
// qualifying click, and kicks the scheduler.
func (h *Handlers) IngestConversions(w http.ResponseWriter, r *http.Request) {
	var ev reporter.Event
	if !httputil.Decode(w, r, &ev) {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	ctx := r.Context()
	payloads, err := h.google.Enqueue(ctx, ev)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id, err := h.jobs.Insert(ctx, reporter.ProviderName, p)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		ids = append(ids, id)
	}

	if len(ids) > 0 && h.trigger != nil {
		if err := h.trigger.Kick(ctx); err != nil {
			logger.Warn("api: queue kick failed", "error", err)
		}
	}

	httputil.Created(w, map[string]interface{}{
		"enqueued": len(ids),
		"job_ids":  ids,
	})
}

// GetDiagLog returns the diagnostic log contents as plain text.
func (h *Handlers) GetDiagLog(w http.ResponseWriter, r *http.Request) {
	contents, err := h.dlog.Contents()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(contents))
}

// ClearDiagLog removes the diagnostic log file.
func (h *Handlers) ClearDiagLog(w http.ResponseWriter, r *http.Request) {
	if err := h.dlog.Clear(); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) clientFromSettings(s settings.Settings) *gads.Client {
	return gads.NewClient(gads.Credentials{
		CustomerID:      s.CustomerID,
		DeveloperToken:  s.DeveloperToken,
		ClientID:        s.ClientID,
		ClientSecret:    s.ClientSecret,
		RefreshToken:    s.RefreshToken,
		LoginCustomerID: s.LoginCustomerID,
	}, h.gadsCfg, h.tokens, h.dlog)
}
