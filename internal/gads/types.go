package gads

// Credentials is everything needed to reach one Google Ads account.
// ConversionActionID is optional and only consulted by TestConnection.
type Credentials struct {
	CustomerID         string
	DeveloperToken     string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	LoginCustomerID    string
	ConversionActionID string
}

// UploadResult is the outcome of a single conversion upload.
// CredentialError distinguishes "fix your credentials" failures from
// transient API problems so callers never have to string-match Error.
type UploadResult struct {
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	CredentialError bool   `json:"credential_error"`
}

// TestConnectionResult is the outcome of the two-phase connection check.
type TestConnectionResult struct {
	Success                  bool   `json:"success"`
	Error                    string `json:"error,omitempty"`
	CredentialError          bool   `json:"credential_error"`
	Debug                    string `json:"debug,omitempty"`
	ConversionActionName     string `json:"conversion_action_name,omitempty"`
	ConversionActionCategory string `json:"conversion_action_category,omitempty"`
}

// CreateActionResult is the outcome of creating a conversion action.
type CreateActionResult struct {
	Success            bool   `json:"success"`
	Error              string `json:"error,omitempty"`
	CredentialError    bool   `json:"credential_error"`
	ConversionActionID string `json:"conversion_action_id,omitempty"`
}

// ActionDetailsResult carries a conversion action's name and category.
// Used for UI auto-population, so failures are plain errors: a missing
// action here is not a credential problem.
type ActionDetailsResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

// tokenResponse is the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// clickConversion is one entry in an uploadClickConversions batch.
type clickConversion struct {
	Gclid              string  `json:"gclid"`
	ConversionAction   string  `json:"conversionAction"`
	ConversionDateTime string  `json:"conversionDateTime"`
	ConversionValue    float64 `json:"conversionValue"`
	CurrencyCode       string  `json:"currencyCode"`
}

type uploadRequest struct {
	Conversions    []clickConversion `json:"conversions"`
	PartialFailure bool              `json:"partialFailure"`
}

type uploadResponse struct {
	PartialFailureError *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"partialFailureError"`
}

// searchRequest is the googleAds:search request body.
type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []struct {
		ConversionAction struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"conversionAction"`
	} `json:"results"`
}

// mutateRequest is the conversionActions:mutate request body.
type mutateRequest struct {
	Operations []mutateOperation `json:"operations"`
}

type mutateOperation struct {
	Create conversionActionCreate `json:"create"`
}

type conversionActionCreate struct {
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	Category      string        `json:"category"`
	Status        string        `json:"status"`
	ValueSettings valueSettings `json:"valueSettings"`
}

type valueSettings struct {
	DefaultValue          float64 `json:"defaultValue"`
	AlwaysUseDefaultValue bool    `json:"alwaysUseDefaultValue"`
	DefaultCurrencyCode   string  `json:"defaultCurrencyCode"`
}

type mutateResponse struct {
	Results []struct {
		ResourceName string `json:"resourceName"`
	} `json:"results"`
}
