// Package settings holds the operator-entered Google Ads credentials and
// conversion defaults. Unlike internal/config (deploy-time, file-based),
// these values change at runtime through the admin API and are stored as a
// single record: reads always return every field with defaults merged in,
// writes replace the whole record.
package settings

import "strconv"

// Settings is the full named-value record. Every field is a string; numeric
// and boolean values are kept as strings so a half-entered form can be saved
// verbatim and validated only when used.
type Settings struct {
	CustomerID               string `json:"customer_id"`
	ConversionActionID       string `json:"conversion_action_id"`
	ConversionActionName     string `json:"conversion_action_name"`
	ConversionActionCategory string `json:"conversion_action_category"`
	DeveloperToken           string `json:"developer_token"`
	ClientID                 string `json:"client_id"`
	ClientSecret             string `json:"client_secret"`
	RefreshToken             string `json:"refresh_token"`
	LoginCustomerID          string `json:"login_customer_id"`
	ConversionValue          string `json:"conversion_value"`
	CurrencyCode             string `json:"currency_code"`
	EnableLogging            string `json:"enable_logging"`
}

// Defaults returns the default value for every field.
func Defaults() Settings {
	return Settings{
		ConversionActionName:     "Offline Conversion",
		ConversionActionCategory: "DEFAULT",
		ConversionValue:          "1",
		CurrencyCode:             "USD",
		EnableLogging:            "0",
	}
}

// withDefaults fills empty fields from Defaults so a read never surfaces a
// missing value.
func withDefaults(s Settings) Settings {
	d := Defaults()
	if s.ConversionActionName == "" {
		s.ConversionActionName = d.ConversionActionName
	}
	if s.ConversionActionCategory == "" {
		s.ConversionActionCategory = d.ConversionActionCategory
	}
	if s.ConversionValue == "" {
		s.ConversionValue = d.ConversionValue
	}
	if s.CurrencyCode == "" {
		s.CurrencyCode = d.CurrencyCode
	}
	if s.EnableLogging == "" {
		s.EnableLogging = d.EnableLogging
	}
	return s
}

// IsConfigured reports whether every field required to reach the Ads API is
// present. Conversion value/currency have defaults and cannot be missing.
func (s Settings) IsConfigured() bool {
	return s.CustomerID != "" &&
		s.ConversionActionID != "" &&
		s.DeveloperToken != "" &&
		s.ClientID != "" &&
		s.ClientSecret != "" &&
		s.RefreshToken != ""
}

// LoggingEnabled interprets the enable_logging flag string.
func (s Settings) LoggingEnabled() bool {
	switch s.EnableLogging {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ConversionValueFloat parses the configured conversion value.
// Malformed or empty values come back as 0.
func (s Settings) ConversionValueFloat() float64 {
	v, err := strconv.ParseFloat(s.ConversionValue, 64)
	if err != nil {
		return 0
	}
	return v
}
