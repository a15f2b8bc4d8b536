package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/settings"
)

// uploadCapture records what the provider actually sent to the API.
type uploadCapture struct {
	ConversionAction   string
	ConversionDateTime string
	ConversionValue    float64
	CurrencyCode       string
	Gclid              string
	Path               string
}

type reporterFixture struct {
	google  *GoogleAds
	flags   *kvstore.MemoryStore
	store   settings.Store
	srv     *httptest.Server
	uploads int64
	tokens  int64

	tokenStatus  int
	uploadStatus int
	uploadBody   string
	captured     *uploadCapture
}

func newReporterFixture(t *testing.T, stored settings.Settings, jobs FailedJobResetter, kicker Kicker) *reporterFixture {
	t.Helper()
	f := &reporterFixture{
		tokenStatus:  http.StatusOK,
		uploadStatus: http.StatusOK,
		uploadBody:   `{}`,
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			atomic.AddInt64(&f.tokens, 1)
			if f.tokenStatus != http.StatusOK {
				w.WriteHeader(f.tokenStatus)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"revoked"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case strings.HasSuffix(r.URL.Path, ":uploadClickConversions"):
			atomic.AddInt64(&f.uploads, 1)
			var req struct {
				Conversions []struct {
					Gclid              string  `json:"gclid"`
					ConversionAction   string  `json:"conversionAction"`
					ConversionDateTime string  `json:"conversionDateTime"`
					ConversionValue    float64 `json:"conversionValue"`
					CurrencyCode       string  `json:"currencyCode"`
				} `json:"conversions"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Conversions) == 1 {
				c := req.Conversions[0]
				f.captured = &uploadCapture{
					ConversionAction:   c.ConversionAction,
					ConversionDateTime: c.ConversionDateTime,
					ConversionValue:    c.ConversionValue,
					CurrencyCode:       c.CurrencyCode,
					Gclid:              c.Gclid,
					Path:               r.URL.Path,
				}
			}
			if f.uploadStatus != http.StatusOK {
				w.WriteHeader(f.uploadStatus)
				w.Write([]byte(`{"error":{"message":"bad request"}}`))
				return
			}
			w.Write([]byte(f.uploadBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)

	cfg := config.GoogleAdsConfig{
		APIBaseURL:     f.srv.URL,
		APIVersion:     "v18",
		TokenURL:       f.srv.URL + "/token",
		TimeoutSeconds: 5,
	}

	f.store = settings.NewMemoryStore(stored)
	f.flags = kvstore.NewMemoryStore()
	dlog := diaglog.New(filepath.Join(t.TempDir(), "diag.log"), func() bool { return false })
	f.google = NewGoogleAds(f.store, f.flags, kvstore.NewMemoryStore(), cfg, dlog, jobs, kicker)
	return f
}

func configuredSettings() settings.Settings {
	return settings.Settings{
		CustomerID:         "123-456-7890",
		ConversionActionID: "42",
		DeveloperToken:     "dev",
		ClientID:           "cid",
		ClientSecret:       "sec",
		RefreshToken:       "ref",
		ConversionValue:    "1000",
		CurrencyCode:       "USD",
	}
}

func fullPayload() Payload {
	return Payload{
		Gclid:               "Cj0gclid",
		ConversionDateTime:  "2026-08-29 10:30:00+00:00",
		AttributionFraction: 1,
		CustomerID:          "123-456-7890",
		ConversionActionID:  "42",
		DeveloperToken:      "dev",
		ClientID:            "cid",
		ClientSecret:        "sec",
		RefreshToken:        "ref",
		ConversionValue:     "1000",
		CurrencyCode:        "USD",
	}
}

func TestEnqueue_FiltersAndSnapshotsInOrder(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)

	occurred := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	ev := Event{
		Attributions: []Attribution{
			{Hash: "a", Fraction: 0.5},
			{Hash: "b", Fraction: 0.3}, // no click ids at all
			{Hash: "c", Fraction: 0.2},
			{Hash: "d", Fraction: 0.1}, // gclid empty for this provider
		},
		ClickIDs: map[string]map[string]string{
			"a": {ProviderName: "gclid-a"},
			"c": {ProviderName: "gclid-c", "other_provider": "x"},
			"d": {"other_provider": "y"},
		},
		OccurredAt: occurred,
	}

	payloads, err := f.google.Enqueue(context.Background(), ev)
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2", len(payloads))
	}
	if payloads[0].Gclid != "gclid-a" || payloads[1].Gclid != "gclid-c" {
		t.Errorf("payload order = %q, %q", payloads[0].Gclid, payloads[1].Gclid)
	}
	if payloads[0].AttributionFraction != 0.5 || payloads[1].AttributionFraction != 0.2 {
		t.Errorf("fractions = %v, %v", payloads[0].AttributionFraction, payloads[1].AttributionFraction)
	}

	p := payloads[0]
	if p.CustomerID != "123-456-7890" || p.DeveloperToken != "dev" ||
		p.ClientSecret != "sec" || p.ConversionValue != "1000" {
		t.Errorf("snapshot = %+v", p)
	}
	if p.ConversionDateTime != "2026-08-29 10:30:00+00:00" {
		t.Errorf("ConversionDateTime = %q", p.ConversionDateTime)
	}
}

func TestEnqueue_EmptyCredentialsStillEnqueue(t *testing.T) {
	// During a credential outage the snapshot fields are empty strings, and
	// the payload still queues; Process reconciles later.
	f := newReporterFixture(t, settings.Settings{}, nil, nil)

	ev := Event{
		Attributions: []Attribution{{Hash: "a", Fraction: 1}},
		ClickIDs:     map[string]map[string]string{"a": {ProviderName: "g1"}},
		OccurredAt:   time.Now(),
	}
	payloads, err := f.google.Enqueue(context.Background(), ev)
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if payloads[0].CustomerID != "" || payloads[0].RefreshToken != "" {
		t.Errorf("credential fields should snapshot as empty, got %+v", payloads[0])
	}
	// defaulted fields still snapshot their defaults
	if payloads[0].ConversionValue != "1" || payloads[0].CurrencyCode != "USD" {
		t.Errorf("default snapshot = %+v", payloads[0])
	}
}

func TestProcess_MissingCredentialsSetsFlagWithoutHTTP(t *testing.T) {
	f := newReporterFixture(t, settings.Settings{}, nil, nil)

	p := Payload{Gclid: "g1", AttributionFraction: 1}
	if f.google.Process(context.Background(), p) {
		t.Fatal("Process should fail when required credentials are missing")
	}

	variant, ok := f.google.CredentialError(context.Background())
	if !ok || variant != CredentialErrorMissing {
		t.Errorf("flag = (%q, %v), want (missing, true)", variant, ok)
	}
	if n := atomic.LoadInt64(&f.tokens) + atomic.LoadInt64(&f.uploads); n != 0 {
		t.Errorf("no HTTP request should be made, got %d", n)
	}
}

func TestProcess_ValueMultiplication(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)

	p := fullPayload()
	p.AttributionFraction = 0.25
	if !f.google.Process(context.Background(), p) {
		t.Fatal("Process should succeed")
	}
	if f.captured == nil {
		t.Fatal("no upload captured")
	}
	if f.captured.ConversionValue != 250 {
		t.Errorf("uploaded value = %v, want 1000 * 0.25 = 250", f.captured.ConversionValue)
	}
	if f.captured.CurrencyCode != "USD" {
		t.Errorf("currency = %q", f.captured.CurrencyCode)
	}
}

func TestProcess_ReReadsValueFromSettings(t *testing.T) {
	// The configured conversion value changed after this payload was queued;
	// the payload snapshot still wins, but an empty snapshot falls back to
	// the live value.
	f := newReporterFixture(t, configuredSettings(), nil, nil)

	p := fullPayload()
	p.ConversionValue = "" // snapshot taken while the field was blank
	p.AttributionFraction = 0.5
	if !f.google.Process(context.Background(), p) {
		t.Fatal("Process should succeed")
	}
	if f.captured.ConversionValue != 500 {
		t.Errorf("uploaded value = %v, want live 1000 * 0.5 = 500", f.captured.ConversionValue)
	}
}

func TestProcess_SnapshotWinsOverSettings(t *testing.T) {
	stored := configuredSettings()
	stored.CustomerID = "999-999-9999"
	stored.CurrencyCode = "EUR"
	f := newReporterFixture(t, stored, nil, nil)

	p := fullPayload() // snapshot says customer 123-456-7890, USD
	if !f.google.Process(context.Background(), p) {
		t.Fatal("Process should succeed")
	}
	if !strings.Contains(f.captured.Path, "customers/1234567890:") {
		t.Errorf("upload path = %q, want the snapshot customer id", f.captured.Path)
	}
	if f.captured.CurrencyCode != "USD" {
		t.Errorf("currency = %q, want the snapshot USD", f.captured.CurrencyCode)
	}
}

func TestProcess_ActionIDPrefersLiveSettings(t *testing.T) {
	// conversion_action_id is the one field where live settings win:
	// changing the configured action retargets already-queued jobs too.
	stored := configuredSettings()
	stored.ConversionActionID = "777"
	f := newReporterFixture(t, stored, nil, nil)

	p := fullPayload()
	p.ConversionActionID = "42"
	if !f.google.Process(context.Background(), p) {
		t.Fatal("Process should succeed")
	}
	if f.captured.ConversionAction != "customers/1234567890/conversionActions/777" {
		t.Errorf("conversionAction = %q, want the live action id 777", f.captured.ConversionAction)
	}
}

func TestProcess_ActionIDSnapshotFallback(t *testing.T) {
	stored := configuredSettings()
	stored.ConversionActionID = ""
	f := newReporterFixture(t, stored, nil, nil)

	p := fullPayload()
	p.ConversionActionID = "42"
	if !f.google.Process(context.Background(), p) {
		t.Fatal("Process should succeed")
	}
	if f.captured.ConversionAction != "customers/1234567890/conversionActions/42" {
		t.Errorf("conversionAction = %q, want the snapshot action id", f.captured.ConversionAction)
	}
}

func TestProcess_TokenFailureSetsCredentialFlag(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)
	f.tokenStatus = http.StatusBadRequest

	if f.google.Process(context.Background(), fullPayload()) {
		t.Fatal("Process should fail on token refresh")
	}
	variant, ok := f.google.CredentialError(context.Background())
	if !ok || variant != CredentialErrorTokenRefresh {
		t.Errorf("flag = (%q, %v), want (token_refresh_failed, true)", variant, ok)
	}
}

func TestProcess_APIErrorDoesNotSetCredentialFlag(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)
	f.uploadStatus = http.StatusBadRequest

	if f.google.Process(context.Background(), fullPayload()) {
		t.Fatal("Process should fail on an API error")
	}
	if _, ok := f.google.CredentialError(context.Background()); ok {
		t.Error("a non-credential API failure must not raise the credential flag")
	}
}

func TestProcess_SuccessClearsCredentialFlag(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)
	f.flags.Set(context.Background(), CredentialErrorKey, CredentialErrorTokenRefresh, 0)

	if !f.google.Process(context.Background(), fullPayload()) {
		t.Fatal("Process should succeed")
	}
	if _, ok := f.google.CredentialError(context.Background()); ok {
		t.Error("a successful upload must clear the credential flag")
	}
}

func TestProcess_PartialFailureReturnsFalse(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)
	f.uploadBody = `{"partialFailureError":{"code":3,"message":"click not found"}}`

	if f.google.Process(context.Background(), fullPayload()) {
		t.Fatal("partial failure should report as a failed delivery")
	}
	if _, ok := f.google.CredentialError(context.Background()); ok {
		t.Error("a partial failure is not a credential error")
	}
}

func TestEnqueueProcessRoundTrip(t *testing.T) {
	f := newReporterFixture(t, configuredSettings(), nil, nil)
	ctx := context.Background()

	ev := Event{
		Attributions: []Attribution{{Hash: "a", Fraction: 0.25}},
		ClickIDs:     map[string]map[string]string{"a": {ProviderName: "gclid-rt"}},
		OccurredAt:   time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
	}
	payloads, err := f.google.Enqueue(ctx, ev)
	if err != nil || len(payloads) != 1 {
		t.Fatalf("Enqueue = (%d payloads, %v)", len(payloads), err)
	}

	// The queue persists payloads as JSON; prove the round trip keeps Process working.
	raw, err := json.Marshal(payloads[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Payload
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !f.google.Process(ctx, restored) {
		t.Fatal("Process should succeed after the round trip")
	}
	if f.captured.Gclid != "gclid-rt" {
		t.Errorf("gclid = %q", f.captured.Gclid)
	}
	if f.captured.ConversionValue != 250 {
		t.Errorf("value = %v, want 1000 * 0.25", f.captured.ConversionValue)
	}
	if f.captured.ConversionDateTime != "2026-08-29 10:30:00+00:00" {
		t.Errorf("datetime = %q", f.captured.ConversionDateTime)
	}
}

type fakeResetter struct {
	calls    int
	provider string
	n        int64
}

func (f *fakeResetter) ResetFailed(ctx context.Context, provider string) (int64, error) {
	f.calls++
	f.provider = provider
	return f.n, nil
}

type fakeKicker struct{ calls int }

func (f *fakeKicker) Kick(ctx context.Context) error {
	f.calls++
	return nil
}

func TestOnSettingsSaved_ConfiguredResetsAndKicks(t *testing.T) {
	jobs := &fakeResetter{n: 3}
	kicker := &fakeKicker{}
	f := newReporterFixture(t, configuredSettings(), jobs, kicker)
	ctx := context.Background()

	f.flags.Set(ctx, CredentialErrorKey, CredentialErrorMissing, 0)

	s, _ := f.store.GetAll(ctx)
	if err := f.google.OnSettingsSaved(ctx, s); err != nil {
		t.Fatalf("OnSettingsSaved returned error: %v", err)
	}

	if _, ok := f.google.CredentialError(ctx); ok {
		t.Error("saving settings must clear the credential flag")
	}
	if jobs.calls != 1 {
		t.Errorf("ResetFailed called %d times, want 1", jobs.calls)
	}
	if jobs.provider != ProviderName {
		t.Errorf("reset provider = %q, want %q", jobs.provider, ProviderName)
	}
	if kicker.calls != 1 {
		t.Errorf("Kick called %d times, want 1", kicker.calls)
	}
}

func TestOnSettingsSaved_IncompleteClearsFlagOnly(t *testing.T) {
	jobs := &fakeResetter{}
	kicker := &fakeKicker{}
	f := newReporterFixture(t, settings.Settings{CustomerID: "123"}, jobs, kicker)
	ctx := context.Background()

	f.flags.Set(ctx, CredentialErrorKey, CredentialErrorMissing, 0)

	s, _ := f.store.GetAll(ctx)
	if err := f.google.OnSettingsSaved(ctx, s); err != nil {
		t.Fatalf("OnSettingsSaved returned error: %v", err)
	}

	if _, ok := f.google.CredentialError(ctx); ok {
		t.Error("the flag clear is unconditional, even with incomplete settings")
	}
	if jobs.calls != 0 {
		t.Errorf("ResetFailed called %d times, want 0 for incomplete settings", jobs.calls)
	}
	if kicker.calls != 0 {
		t.Errorf("Kick called %d times, want 0", kicker.calls)
	}
}
