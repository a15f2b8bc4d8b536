package reporter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/gads"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/pkg/logger"
	"github.com/ignite/gads-reporter/internal/settings"
)

// ProviderName is the key this reporter registers under and the key it
// expects in Event.ClickIDs.
const ProviderName = "google_ads"

// CredentialErrorKey is the flag consumed by the admin notice: present means
// uploads are failing because of bad or missing credentials, not some other
// API problem. The value names the variant for diagnostics.
const CredentialErrorKey = "credential_error"

// Credential-error flag variants.
const (
	CredentialErrorMissing      = "missing"
	CredentialErrorTokenRefresh = "token_refresh_failed"
)

// FailedJobResetter resets this provider's failed queue jobs back to
// pending. Implemented by the queue store.
type FailedJobResetter interface {
	ResetFailed(ctx context.Context, provider string) (int64, error)
}

// Kicker schedules an immediate queue-processing run.
type Kicker interface {
	Kick(ctx context.Context) error
}

// GoogleAds delivers click conversions to the Google Ads Offline Conversion
// Upload API.
type GoogleAds struct {
	settings settings.Store
	flags    kvstore.Store
	cache    kvstore.Store
	cfg      config.GoogleAdsConfig
	dlog     *diaglog.Logger
	jobs     FailedJobResetter
	kicker   Kicker
}

// NewGoogleAds creates the Google Ads reporter. jobs and kicker may be nil
// in contexts that never call ResetFailedJobs (e.g. the worker process).
func NewGoogleAds(store settings.Store, flags, cache kvstore.Store, cfg config.GoogleAdsConfig, dlog *diaglog.Logger, jobs FailedJobResetter, kicker Kicker) *GoogleAds {
	return &GoogleAds{
		settings: store,
		flags:    flags,
		cache:    cache,
		cfg:      cfg,
		dlog:     dlog,
		jobs:     jobs,
		kicker:   kicker,
	}
}

// Name returns the provider key.
func (g *GoogleAds) Name() string { return ProviderName }

// Enqueue builds one payload per attribution that has a gclid for this
// provider, snapshotting current settings verbatim into each payload,
// including empty credential fields during an outage. Missing gclids are
// filtering, not errors. Output preserves attribution order.
func (g *GoogleAds) Enqueue(ctx context.Context, ev Event) ([]Payload, error) {
	s, err := g.settings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	datetime := ev.OccurredAt.Format(ConversionDateTimeLayout)

	var payloads []Payload
	for _, attr := range ev.Attributions {
		ids, ok := ev.ClickIDs[attr.Hash]
		if !ok {
			continue
		}
		gclid := ids[ProviderName]
		if gclid == "" {
			continue
		}

		payloads = append(payloads, Payload{
			Gclid:               gclid,
			ConversionDateTime:  datetime,
			AttributionFraction: attr.Fraction,
			CustomerID:          s.CustomerID,
			ConversionActionID:  s.ConversionActionID,
			DeveloperToken:      s.DeveloperToken,
			ClientID:            s.ClientID,
			ClientSecret:        s.ClientSecret,
			RefreshToken:        s.RefreshToken,
			LoginCustomerID:     s.LoginCustomerID,
			ConversionValue:     s.ConversionValue,
			CurrencyCode:        s.CurrencyCode,
		})
	}

	return payloads, nil
}

// mergeField prefers the payload snapshot and falls back to current settings
// when the snapshot is empty (the credential-outage case).
func mergeField(payload, current string) string {
	if payload != "" {
		return payload
	}
	return current
}

// Process delivers one queued conversion. Returns false on any expected
// failure so the queue's retry/backoff owns recovery; credentials may well
// be restored between attempts.
func (g *GoogleAds) Process(ctx context.Context, p Payload) bool {
	s, err := g.settings.GetAll(ctx)
	if err != nil {
		logger.Error("reporter: settings read failed", "error", err)
		return false
	}

	// Snapshot-wins merge for every field except conversion_action_id:
	// an operator who changes the configured action ID intends ALL pending
	// jobs, already-queued ones included, to use the new ID.
	customerID := mergeField(p.CustomerID, s.CustomerID)
	actionID := mergeField(s.ConversionActionID, p.ConversionActionID)
	developerToken := mergeField(p.DeveloperToken, s.DeveloperToken)
	clientID := mergeField(p.ClientID, s.ClientID)
	clientSecret := mergeField(p.ClientSecret, s.ClientSecret)
	refreshToken := mergeField(p.RefreshToken, s.RefreshToken)
	loginCustomerID := mergeField(p.LoginCustomerID, s.LoginCustomerID)
	conversionValue := mergeField(p.ConversionValue, s.ConversionValue)
	currencyCode := mergeField(p.CurrencyCode, s.CurrencyCode)

	if customerID == "" || actionID == "" || developerToken == "" ||
		clientID == "" || clientSecret == "" || refreshToken == "" {
		g.setCredentialError(ctx, CredentialErrorMissing)
		g.dlog.Error(fmt.Sprintf(
			"upload aborted for gclid %s: required credentials still missing after merge", p.Gclid))
		return false
	}

	resource := gads.ConversionActionResourceName(customerID, actionID)

	// The multiplication happens here, not at enqueue time: the configured
	// conversion value may have changed since this payload was queued, and
	// the re-read value is the one that should be reported.
	value, err := strconv.ParseFloat(conversionValue, 64)
	if err != nil {
		value = 0
	}
	attributed := value * p.AttributionFraction

	client := gads.NewClient(gads.Credentials{
		CustomerID:      customerID,
		DeveloperToken:  developerToken,
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		RefreshToken:    refreshToken,
		LoginCustomerID: loginCustomerID,
	}, g.cfg, g.cache, g.dlog)

	result := client.UploadClickConversion(ctx, p.Gclid, resource, p.ConversionDateTime, attributed, currencyCode)
	if !result.Success {
		if result.CredentialError {
			g.setCredentialError(ctx, CredentialErrorTokenRefresh)
		}
		g.dlog.Error(fmt.Sprintf("upload failed for gclid %s: %s", p.Gclid, result.Error))
		logger.Warn("reporter: upload failed",
			"gclid", p.Gclid, "credential_error", result.CredentialError, "error", result.Error)
		return false
	}

	g.ClearCredentialError(ctx)
	g.dlog.Info(fmt.Sprintf("uploaded conversion for gclid %s (value %.2f %s)", p.Gclid, attributed, currencyCode))
	return true
}

// ResetFailedJobs resets this provider's failed jobs to pending with
// attempts zeroed, then kicks the scheduler for a near-immediate run.
// Called by the settings-save handler once configuration is complete.
func (g *GoogleAds) ResetFailedJobs(ctx context.Context) error {
	if g.jobs == nil {
		return nil
	}
	n, err := g.jobs.ResetFailed(ctx, ProviderName)
	if err != nil {
		return fmt.Errorf("resetting failed jobs: %w", err)
	}
	logger.Info("reporter: failed jobs reset", "count", n)

	if g.kicker != nil {
		if err := g.kicker.Kick(ctx); err != nil {
			logger.Warn("reporter: queue kick failed", "error", err)
		}
	}
	return nil
}

// OnSettingsSaved is the credential-restore trigger. The flag clear is
// unconditional so the admin notice disappears the instant the operator
// re-enters credentials, before the next processing tick confirms anything.
func (g *GoogleAds) OnSettingsSaved(ctx context.Context, s settings.Settings) error {
	g.ClearCredentialError(ctx)
	if !s.IsConfigured() {
		return nil
	}
	return g.ResetFailedJobs(ctx)
}

// CredentialError returns the current flag variant, if set.
func (g *GoogleAds) CredentialError(ctx context.Context) (string, bool) {
	val, ok, err := g.flags.Get(ctx, CredentialErrorKey)
	if err != nil {
		logger.Warn("reporter: credential flag read failed", "error", err)
		return "", false
	}
	return val, ok
}

// ClearCredentialError removes the flag.
func (g *GoogleAds) ClearCredentialError(ctx context.Context) {
	if err := g.flags.Delete(ctx, CredentialErrorKey); err != nil {
		logger.Warn("reporter: credential flag clear failed", "error", err)
	}
}

func (g *GoogleAds) setCredentialError(ctx context.Context, variant string) {
	// No TTL: the flag persists until a successful upload or a settings save.
	if err := g.flags.Set(ctx, CredentialErrorKey, variant, 0); err != nil {
		logger.Warn("reporter: credential flag set failed", "error", err)
	}
}
