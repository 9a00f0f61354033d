package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket holds the timeseries points of one calendar day or hour.
type Bucket struct {
	Key       string
	StartedAt time.Time
	Points    []TimeseriesPoint
	Volume    decimal.Decimal
}

// Add returns the bucket with the point appended and its volume counted.
func (b Bucket) Add(point TimeseriesPoint) Bucket {
	b.Points = append(b.Points, point)
	b.Volume = b.Volume.Add(point.QuoteAmount)
	return b
}

// DateRange is the first and last bucket key of a series.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ChartSeries is index-aligned: position i of Dates, Volume, Revenue and
// Percentage describes the same bucket. Trend starts TrendOffset buckets late.
type ChartSeries struct {
	Dates              []string
	Volume             []decimal.Decimal
	Revenue            []decimal.Decimal
	Percentage         []decimal.Decimal
	Trend              []decimal.Decimal
	TrendOffset        int
	TotalDataPoints    int
	FilteredDataPoints int
	DateRange          DateRange
}

// NewChartSeries returns an empty series with room for n buckets.
func NewChartSeries(n int) ChartSeries {
	return ChartSeries{
		Dates:      make([]string, 0, n),
		Volume:     make([]decimal.Decimal, 0, n),
		Revenue:    make([]decimal.Decimal, 0, n),
		Percentage: make([]decimal.Decimal, 0, n),
		Trend:      []decimal.Decimal{},
	}
}

// Len returns the number of buckets.
func (c ChartSeries) Len() int {
	return len(c.Dates)
}

// TrendAt returns the moving average for bucket i, if the window had filled by then.
func (c ChartSeries) TrendAt(i int) (decimal.Decimal, bool) {
	index := i - c.TrendOffset
	if index < 0 || index >= len(c.Trend) {
		return decimal.Zero, false
	}
	return c.Trend[index], true
}

// TableRow is one display-ready purchase row.
type TableRow struct {
	ID                  string `json:"id"`
	AmountToken         string `json:"amountPump"`
	AmountQuote         string `json:"amountSol"`
	AmountUSD           string `json:"amountUsd"`
	Price               string `json:"price"`
	DailyRevenuePercent string `json:"dailyRevenuePercent"`
	Revenue             string `json:"revenue"`
	Time                string `json:"time"`
	Timestamp           int64  `json:"timestamp"`
}

// SummaryCards are the display strings of the headline card row.
type SummaryCards struct {
	TotalPurchases    string `json:"totalPurchases"`
	TotalPurchasesUSD string `json:"totalPurchasesUsd"`
	TotalSupply       string `json:"totalSupply"`
	CirculatingOffset string `json:"circulatingOffset"`
}
