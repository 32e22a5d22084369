package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the classification of one product page check.
type Status string

const (
	StatusActive         Status = "ACTIVE"
	StatusNoPromo        Status = "NO_PROMO"
	StatusErrorTimeout   Status = "ERROR_TIMEOUT"
	StatusErrorCaptcha   Status = "ERROR_CAPTCHA"
	StatusErrorException Status = "ERROR_EXCEPTION"
)

// IsError reports whether the row failed and is eligible for a selective retry.
func (s Status) IsError() bool {
	return strings.HasPrefix(string(s), "ERROR")
}

// Placeholders rendered in place of a price or label.
const (
	PlaceholderNotFound     = "not found"
	PlaceholderNotAvailable = "N/A"
	PlaceholderError        = "Error"
)

// ProductCheckInput is one input row.
type ProductCheckInput struct {
	// Row is the zero-based position of the row in the input table.
	// It is the identity used when merging retried results back.
	Row int `json:"row"`

	// URL is the product page. Normalized to carry a scheme before use.
	URL string `json:"url"`

	// ASIN and Marketplace are kept for reporting when the URL was derived from them.
	ASIN        string `json:"asin,omitempty"`
	Marketplace string `json:"marketplace,omitempty"`
}

// NormalizedURL returns the URL with an https scheme prepended when it has none.
func (in ProductCheckInput) NormalizedURL() string {
	return NormalizeURL(in.URL)
}

// NormalizeURL trims the URL and prepends https:// when no http(s) scheme is present.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return u
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + strings.TrimPrefix(u, "//")
}

// PriceReading is one parsed price candidate.
type PriceReading struct {
	RawText  string  `json:"raw_text"`
	Value    float64 `json:"value"`
	Selector string  `json:"selector"`
}

// PriceField is either a reading or a placeholder such as "not found".
type PriceField struct {
	Reading     *PriceReading
	Placeholder string
}

// FieldOf wraps a reading.
func FieldOf(r PriceReading) PriceField {
	return PriceField{Reading: &r}
}

// Placeholder returns a field that renders as text only.
func Placeholder(text string) PriceField {
	return PriceField{Placeholder: text}
}

// Found reports whether the field carries a reading.
func (f PriceField) Found() bool { return f.Reading != nil }

// String renders the raw price text or the placeholder.
func (f PriceField) String() string {
	if f.Reading != nil {
		return f.Reading.RawText
	}
	return f.Placeholder
}

func (f PriceField) MarshalJSON() ([]byte, error) {
	out := struct {
		Text     string   `json:"text"`
		Value    *float64 `json:"value,omitempty"`
		Selector string   `json:"selector,omitempty"`
	}{Text: f.String()}
	if f.Reading != nil {
		v := f.Reading.Value
		out.Value = &v
		out.Selector = f.Reading.Selector
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape written by MarshalJSON. A text without a
// value decodes as a placeholder.
func (f *PriceField) UnmarshalJSON(data []byte) error {
	var in struct {
		Text     string   `json:"text"`
		Value    *float64 `json:"value"`
		Selector string   `json:"selector"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Value == nil {
		*f = Placeholder(in.Text)
		return nil
	}
	*f = FieldOf(PriceReading{RawText: in.Text, Value: *in.Value, Selector: in.Selector})
	return nil
}

// SignalKind names the kind of promotional indicator that fired.
type SignalKind string

const (
	SignalBadge                 SignalKind = "badge"
	SignalCoupon                SignalKind = "coupon"
	SignalBestSeller            SignalKind = "bestSeller"
	SignalAmazonsChoice         SignalKind = "amazonsChoice"
	SignalStrikePrice           SignalKind = "strikePrice"
	SignalExplicitDiscountBadge SignalKind = "explicitDiscountBadge"
	SignalPriceDropComputed     SignalKind = "priceDropComputed"
)

// PromoSignal is a detected promotional indicator.
type PromoSignal struct {
	Kind  SignalKind `json:"kind"`
	Label string     `json:"label"`
}

// PromoCheckResult is one output row. It is produced once per input and only
// ever replaced wholesale by a retry.
type PromoCheckResult struct {
	Row           int           `json:"row"`
	URL           string        `json:"url"`
	Status        Status        `json:"status"`
	Details       string        `json:"details"`
	CurrentPrice  PriceField    `json:"current_price"`
	NormalPrice   PriceField    `json:"normal_price"`
	DiscountLabel string        `json:"discount_label"`
	Signals       []PromoSignal `json:"signals,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// FailedResult builds a result row for a check that did not reach fusion.
// Exceptions carry "Error" in every price column; timeouts and bot checks carry "N/A".
func FailedResult(row int, url string, status Status, details string) PromoCheckResult {
	placeholder := PlaceholderNotAvailable
	if status == StatusErrorException {
		placeholder = PlaceholderError
	}
	return PromoCheckResult{
		Row:           row,
		URL:           url,
		Status:        status,
		Details:       details,
		CurrentPrice:  Placeholder(placeholder),
		NormalPrice:   Placeholder(placeholder),
		DiscountLabel: placeholder,
	}
}
