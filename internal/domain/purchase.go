package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRecord is one executed token purchase as reported by the upstream API.
type PurchaseRecord struct {
	ID                  string           `json:"_id"`
	BaseAmount          decimal.Decimal  `json:"baseAmount"`
	QuoteAmount         decimal.Decimal  `json:"quoteAmount"`
	QuoteAmountUSD      decimal.Decimal  `json:"quoteAmountUsd"`
	Price               decimal.Decimal  `json:"price"`
	Time                string           `json:"time,omitempty"`
	DailyRevenuePercent *decimal.Decimal `json:"dailyRevenuePercent,omitempty"`
}

// TimeseriesPoint is a coarse volume sample; one point may cover zero or more purchases.
type TimeseriesPoint struct {
	QuoteAmount decimal.Decimal `json:"quoteAmount"`
	Time        string          `json:"time"`
}

// PurchasePayload is the full upstream response. It is never mutated after decoding,
// so its pointer identifies one fetch.
type PurchasePayload struct {
	Records                []PurchaseRecord  `json:"data"`
	Timeseries             []TimeseriesPoint `json:"timeseries"`
	TotalCount             int64             `json:"totalCount"`
	TotalBaseAmount        decimal.Decimal   `json:"totalBaseAmount"`
	TotalQuoteAmountUSD    decimal.Decimal   `json:"totalQuoteAmountUsd"`
	TotalCirculatingSupply decimal.Decimal   `json:"totalCirculatingSupply"`
}

// Totals are the headline scalars shown in the summary card row.
type Totals struct {
	TotalCount             int64           `json:"totalCount"`
	TotalBaseAmount        decimal.Decimal `json:"totalBaseAmount"`
	TotalQuoteAmountUSD    decimal.Decimal `json:"totalQuoteAmountUsd"`
	TotalCirculatingSupply decimal.Decimal `json:"totalCirculatingSupply"`
}

// Totals returns the payload scalars, or nil for a nil payload.
func (p *PurchasePayload) Totals() *Totals {
	if p == nil {
		return nil
	}

	return &Totals{
		TotalCount:             p.TotalCount,
		TotalBaseAmount:        p.TotalBaseAmount,
		TotalQuoteAmountUSD:    p.TotalQuoteAmountUSD,
		TotalCirculatingSupply: p.TotalCirculatingSupply,
	}
}

// Validate reports structural problems. Empty arrays are valid: a freshly
// launched token has no purchases yet.
func (p *PurchasePayload) Validate() error {
	switch {
	case p == nil:
		return &TransformError{Field: "payload", Reason: "missing"}
	case p.Records == nil:
		return &TransformError{Field: "data", Reason: "missing"}
	case p.Timeseries == nil:
		return &TransformError{Field: "timeseries", Reason: "missing"}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 shapes the upstream API emits.
// Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
