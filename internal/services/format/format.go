// Package format renders amounts, prices and dates the way the dashboard displays them.
package format

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// TokenAmount renders a token quantity with a magnitude suffix:
// 2 decimals below 1K, otherwise one decimal and K, M or B.
func TokenAmount(v decimal.Decimal) string {
	if s, ok := suffixed(v); ok {
		return s
	}
	return v.StringFixed(2)
}

// Compact is TokenAmount for the card row, where values below 1K keep up to
// three fraction digits instead of a fixed two.
func Compact(v decimal.Decimal) string {
	if s, ok := suffixed(v); ok {
		return s
	}
	return v.Round(3).String()
}

// WholeCompact is Compact without a trailing ".0", e.g. "1B" rather than "1.0B".
func WholeCompact(v decimal.Decimal) string {
	s, ok := suffixed(v)
	if !ok {
		return Compact(v)
	}
	unit := s[len(s)-1:]
	return strings.TrimSuffix(s[:len(s)-1], ".0") + unit
}

// USD renders a compact dollar amount, e.g. "$1.2M".
func USD(v decimal.Decimal) string {
	return "$" + Compact(v)
}

func suffixed(v decimal.Decimal) (string, bool) {
	switch {
	case v.GreaterThanOrEqual(billion):
		return v.Div(billion).StringFixed(1) + "B", true
	case v.GreaterThanOrEqual(million):
		return v.Div(million).StringFixed(1) + "M", true
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).StringFixed(1) + "K", true
	}
	return "", false
}

// Amount renders v with exactly two decimals and thousands separators, e.g. "19,680.32".
func Amount(v decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", v.Round(2).InexactFloat64())
}

// Price renders a unit price with a fixed number of decimals, e.g. "$0.002".
func Price(v decimal.Decimal, precision int32) string {
	return "$" + v.StringFixed(precision)
}

// Percent renders v with a fixed number of decimals and a percent sign.
func Percent(v decimal.Decimal, places int32) string {
	return v.StringFixed(places) + "%"
}

// CalendarDate renders a row date such as "Oct 15, 2025".
func CalendarDate(t time.Time, loc *time.Location) string {
	return t.In(location(loc)).Format("Jan 2, 2006")
}

// ChartDate renders a bucket start as an axis label: "01/02/2006" per day,
// "01/02 15:00" per hour.
func ChartDate(start time.Time, g domain.Granularity, loc *time.Location) string {
	return start.In(location(loc)).Format(g.ChartLayout())
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
