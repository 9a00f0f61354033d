package web

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/dashboard"
)

// dashboardResponse is the JSON contract consumed by the page and by stream clients.
type dashboardResponse struct {
	TableRows []domain.TableRow   `json:"tableRows"`
	ChartData chartData           `json:"chartData"`
	Cards     domain.SummaryCards `json:"cards"`
	Totals    *totals             `json:"totals"`
	IsLoading bool                `json:"isLoading"`
	Error     *string             `json:"error"`
	UpdatedAt *time.Time          `json:"updatedAt,omitempty"`
}

type chartData struct {
	Dates              []string         `json:"dates"`
	Volume             []float64        `json:"volume"`
	Revenue            []float64        `json:"revenue"`
	Percentage         []float64        `json:"percentage"`
	Trend              []*float64       `json:"trend"`
	TotalDataPoints    int              `json:"totalDataPoints"`
	FilteredDataPoints int              `json:"filteredDataPoints"`
	DateRange          domain.DateRange `json:"dateRange"`
}

type totals struct {
	TotalCount             int64   `json:"totalCount"`
	TotalBaseAmount        float64 `json:"totalBaseAmount"`
	TotalQuoteAmountUSD    float64 `json:"totalQuoteAmountUsd"`
	TotalCirculatingSupply float64 `json:"totalCirculatingSupply"`
}

func newDashboardResponse(state dashboard.State) dashboardResponse {
	resp := dashboardResponse{
		TableRows: state.TableRows,
		ChartData: newChartData(state.ChartSeries),
		Cards:     state.Cards,
		IsLoading: state.IsLoading,
	}
	if resp.TableRows == nil {
		resp.TableRows = []domain.TableRow{}
	}
	if state.Totals != nil {
		resp.Totals = &totals{
			TotalCount:             state.Totals.TotalCount,
			TotalBaseAmount:        state.Totals.TotalBaseAmount.InexactFloat64(),
			TotalQuoteAmountUSD:    state.Totals.TotalQuoteAmountUSD.InexactFloat64(),
			TotalCirculatingSupply: state.Totals.TotalCirculatingSupply.InexactFloat64(),
		}
	}
	if state.Err != nil {
		msg := state.Err.Error()
		resp.Error = &msg
	}
	if !state.UpdatedAt.IsZero() {
		updated := state.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// newChartData pads the trend with nulls so every array has one entry per bucket.
func newChartData(series domain.ChartSeries) chartData {
	n := series.Len()
	data := chartData{
		Dates:              series.Dates,
		Volume:             floats(series.Volume),
		Revenue:            floats(series.Revenue),
		Percentage:         floats(series.Percentage),
		Trend:              make([]*float64, n),
		TotalDataPoints:    series.TotalDataPoints,
		FilteredDataPoints: series.FilteredDataPoints,
		DateRange:          series.DateRange,
	}
	if data.Dates == nil {
		data.Dates = []string{}
	}
	for i := 0; i < n; i++ {
		if v, ok := series.TrendAt(i); ok {
			f := v.InexactFloat64()
			data.Trend[i] = &f
		}
	}
	return data
}

func floats(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}
