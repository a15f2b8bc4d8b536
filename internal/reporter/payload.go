package reporter

// Payload is one queued conversion job body. Credential fields are a
// verbatim snapshot of settings at enqueue time and MAY be empty strings
// during a credential outage; the payload is enqueued anyway and reconciled
// against live settings when processed. Payloads are immutable once queued:
// Process derives merged values locally and never writes back.
type Payload struct {
	Gclid               string  `json:"gclid"`
	ConversionDateTime  string  `json:"conversion_datetime"`
	AttributionFraction float64 `json:"attribution_fraction"`

	CustomerID         string `json:"customer_id"`
	ConversionActionID string `json:"conversion_action_id"`
	DeveloperToken     string `json:"developer_token"`
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	RefreshToken       string `json:"refresh_token"`
	LoginCustomerID    string `json:"login_customer_id"`
	ConversionValue    string `json:"conversion_value"`
	CurrencyCode       string `json:"currency_code"`
}

// ConversionDateTimeLayout is the offset-aware format Google Ads expects for
// conversionDateTime values.
const ConversionDateTimeLayout = "2006-01-02 15:04:05-07:00"
