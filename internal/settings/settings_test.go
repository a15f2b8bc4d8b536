package settings

import (
	"context"
	"testing"
)

func TestGetAll_DefaultsMerged(t *testing.T) {
	store := NewMemoryStore(Settings{})

	s, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}

	if s.ConversionActionName != "Offline Conversion" {
		t.Errorf("ConversionActionName = %q, want default", s.ConversionActionName)
	}
	if s.ConversionActionCategory != "DEFAULT" {
		t.Errorf("ConversionActionCategory = %q, want %q", s.ConversionActionCategory, "DEFAULT")
	}
	if s.ConversionValue != "1" {
		t.Errorf("ConversionValue = %q, want %q", s.ConversionValue, "1")
	}
	if s.CurrencyCode != "USD" {
		t.Errorf("CurrencyCode = %q, want %q", s.CurrencyCode, "USD")
	}
	if s.EnableLogging != "0" {
		t.Errorf("EnableLogging = %q, want %q", s.EnableLogging, "0")
	}

	// Credential fields have no defaults and stay empty
	if s.CustomerID != "" || s.DeveloperToken != "" {
		t.Error("credential fields should remain empty when unset")
	}
}

func TestGetAll_StoredValuesWin(t *testing.T) {
	store := NewMemoryStore(Settings{
		CurrencyCode:    "EUR",
		ConversionValue: "42.5",
	})

	s, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	if s.CurrencyCode != "EUR" {
		t.Errorf("CurrencyCode = %q, want %q", s.CurrencyCode, "EUR")
	}
	if s.ConversionValue != "42.5" {
		t.Errorf("ConversionValue = %q, want %q", s.ConversionValue, "42.5")
	}
}

func TestSave_Replaces(t *testing.T) {
	store := NewMemoryStore(Settings{CustomerID: "111"})
	ctx := context.Background()

	if err := store.Save(ctx, Settings{CustomerID: "222", DeveloperToken: "tok"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	s, _ := store.GetAll(ctx)
	if s.CustomerID != "222" {
		t.Errorf("CustomerID = %q, want %q", s.CustomerID, "222")
	}
	if s.DeveloperToken != "tok" {
		t.Errorf("DeveloperToken = %q, want %q", s.DeveloperToken, "tok")
	}
}

func TestIsConfigured(t *testing.T) {
	complete := Settings{
		CustomerID:         "1234567890",
		ConversionActionID: "987",
		DeveloperToken:     "dev",
		ClientID:           "cid",
		ClientSecret:       "sec",
		RefreshToken:       "ref",
	}
	if !complete.IsConfigured() {
		t.Error("complete settings should be configured")
	}

	required := []func(*Settings){
		func(s *Settings) { s.CustomerID = "" },
		func(s *Settings) { s.ConversionActionID = "" },
		func(s *Settings) { s.DeveloperToken = "" },
		func(s *Settings) { s.ClientID = "" },
		func(s *Settings) { s.ClientSecret = "" },
		func(s *Settings) { s.RefreshToken = "" },
	}
	for i, clear := range required {
		s := complete
		clear(&s)
		if s.IsConfigured() {
			t.Errorf("case %d: settings missing a required field should not be configured", i)
		}
	}
}

func TestLoggingEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"yes", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"banana", false},
	}
	for _, tt := range tests {
		s := Settings{EnableLogging: tt.value}
		if got := s.LoggingEnabled(); got != tt.want {
			t.Errorf("LoggingEnabled(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestConversionValueFloat(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"1000", 1000},
		{"42.5", 42.5},
		{"0", 0},
		{"", 0},
		{"not-a-number", 0},
	}
	for _, tt := range tests {
		s := Settings{ConversionValue: tt.value}
		if got := s.ConversionValueFloat(); got != tt.want {
			t.Errorf("ConversionValueFloat(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
