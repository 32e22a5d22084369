package models

// CheckRequest is the payload for POST /api/v1/check.
type CheckRequest struct {
	// URL is the product page to check. Required unless ASIN is set.
	URL string `json:"url,omitempty"`

	// ASIN is expanded to https://www.<marketplace domain>/dp/<asin> when URL is empty.
	ASIN string `json:"asin,omitempty"`

	// Marketplace selects the storefront domain for ASIN expansion ("de", "amazon.es", ...).
	Marketplace string `json:"marketplace,omitempty"`
}

// BatchRequest is the payload for POST /api/v1/batch/check.
type BatchRequest struct {
	// URLs and ASINs list the products to check. At least one of them is required;
	// URLs come first in the result order, then ASINs.
	URLs  []string `json:"urls,omitempty"`
	ASINs []string `json:"asins,omitempty"`

	// Marketplace selects the storefront domain for ASIN expansion.
	Marketplace string `json:"marketplace,omitempty"`

	// Headless overrides the configured browser mode for this batch.
	Headless *bool `json:"headless,omitempty"`

	// WebhookURL receives a signed batch.completed event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}
