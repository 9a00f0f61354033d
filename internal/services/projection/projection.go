// Package projection maps raw purchase records to display-ready table rows and
// the summary card row.
package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/format"
)

const (
	MinPricePrecision     int32 = 3
	MaxPricePrecision     int32 = 6
	DefaultPricePrecision       = MinPricePrecision

	notAvailable = "N/A"
)

// Options control row formatting.
type Options struct {
	PricePrecision int32
	// FeeRate is deducted from the quote amount to estimate per-row revenue.
	FeeRate     decimal.Decimal
	QuoteSymbol string
	Location    *time.Location
	Now         func() time.Time
}

// ProjectRows returns one row per record in input order. The row time comes
// from the record, else from the timeseries point at the same index, else from
// the current time.
func ProjectRows(records []domain.PurchaseRecord, fallback []domain.TimeseriesPoint, opts Options) []domain.TableRow {
	rows := make([]domain.TableRow, 0, len(records))
	if len(records) == 0 {
		return rows
	}

	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	precision := clampPrecision(opts.PricePrecision)
	keep := decimal.NewFromInt(1).Sub(opts.FeeRate)

	for i, record := range records {
		ts := resolveTimestamp(record, fallback, i, now)

		rows = append(rows, domain.TableRow{
			ID:                  record.ID,
			AmountToken:         format.TokenAmount(record.BaseAmount),
			AmountQuote:         format.Amount(record.QuoteAmount),
			AmountUSD:           format.Amount(record.QuoteAmountUSD),
			Price:               format.Price(record.Price, precision),
			DailyRevenuePercent: dailyRevenuePercent(record.DailyRevenuePercent),
			Revenue:             revenue(record.QuoteAmount.Mul(keep), opts.QuoteSymbol),
			Time:                format.CalendarDate(ts, opts.Location),
			Timestamp:           ts.UnixMilli(),
		})
	}

	return rows
}

func resolveTimestamp(record domain.PurchaseRecord, fallback []domain.TimeseriesPoint, index int, now time.Time) time.Time {
	if ts, ok := domain.ParseTimestamp(record.Time); ok {
		return ts
	}
	if index < len(fallback) {
		if ts, ok := domain.ParseTimestamp(fallback[index].Time); ok {
			return ts
		}
	}
	return now
}

func dailyRevenuePercent(v *decimal.Decimal) string {
	if v == nil || v.IsZero() {
		return notAvailable
	}
	return format.Percent(*v, 3)
}

func revenue(v decimal.Decimal, symbol string) string {
	if symbol == "" {
		return format.Amount(v)
	}
	return format.Amount(v) + " " + symbol
}

func clampPrecision(p int32) int32 {
	switch {
	case p == 0:
		return DefaultPricePrecision
	case p < MinPricePrecision:
		return MinPricePrecision
	case p > MaxPricePrecision:
		return MaxPricePrecision
	}
	return p
}
