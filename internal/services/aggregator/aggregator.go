// Package aggregator reduces time buckets to the index-aligned series the
// revenue chart draws.
package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/bucketing"
	"github.com/devusmanrafiq/lab-landing/internal/services/format"
	"github.com/devusmanrafiq/lab-landing/pkg/indicators"
)

var (
	hundred       = decimal.NewFromInt(100)
	maxPercentage = decimal.NewFromInt(250)
)

// Options control how buckets are reduced.
type Options struct {
	// FeeRate turns purchase volume into the revenue estimate.
	FeeRate     decimal.Decimal
	Granularity domain.Granularity
	Location    *time.Location
	// TrendPeriod is the moving average window over bucket volumes; 0 disables it.
	TrendPeriod int
	TrendMethod indicators.Method
}

// Aggregate reduces chronologically sorted buckets to chart series.
//
// percentage[i] compares the bucket volume against the previous bucket's
// revenue estimate. The first bucket has no predecessor and is defined as 100%;
// this is a display simplification, not a day-over-day metric.
func Aggregate(buckets []domain.Bucket, opts Options) domain.ChartSeries {
	series := domain.NewChartSeries(len(buckets))

	for i, bucket := range buckets {
		volume := bucket.Volume
		revenue := volume.Mul(opts.FeeRate)

		percentage := hundred
		if i > 0 {
			percentage = percentageOf(volume, series.Revenue[i-1])
		}

		series.Dates = append(series.Dates, format.ChartDate(bucket.StartedAt, opts.Granularity, opts.Location))
		series.Volume = append(series.Volume, volume)
		series.Revenue = append(series.Revenue, revenue)
		series.Percentage = append(series.Percentage, percentage)
	}

	series.Trend, series.TrendOffset = movingAverage(series.Volume, opts.TrendPeriod, opts.TrendMethod)

	if len(buckets) > 0 {
		series.DateRange = domain.DateRange{
			Start: buckets[0].Key,
			End:   buckets[len(buckets)-1].Key,
		}
	}

	return series
}

// FromPayload buckets the payload timeseries inside the retention window and
// aggregates the result.
func FromPayload(payload *domain.PurchasePayload, windowDays int, now time.Time, opts Options) domain.ChartSeries {
	if payload == nil {
		return domain.NewChartSeries(0)
	}

	groups := bucketing.Bucketize(payload.Timeseries, windowDays, opts.Granularity, now, opts.Location)
	buckets := bucketing.Sorted(groups, opts.Granularity, opts.Location)

	series := Aggregate(buckets, opts)
	series.TotalDataPoints = len(payload.Timeseries)
	series.FilteredDataPoints = bucketing.Count(groups)

	return series
}

// percentageOf is volume/reference*100 clamped to [0, 250]; a non-positive
// reference yields 100.
func percentageOf(volume, reference decimal.Decimal) decimal.Decimal {
	if !reference.IsPositive() {
		return hundred
	}

	p := volume.Div(reference).Mul(hundred)
	switch {
	case p.GreaterThan(maxPercentage):
		return maxPercentage
	case p.IsNegative():
		return decimal.Zero
	}
	return p
}

// movingAverage returns the trend over volumes and how many leading buckets
// it does not cover. Too few buckets yield an empty trend.
func movingAverage(volumes []decimal.Decimal, period int, method indicators.Method) ([]decimal.Decimal, int) {
	out, offset, err := indicators.MovingAverage(method, volumes, period)
	if err != nil {
		return []decimal.Decimal{}, len(volumes)
	}
	return out, offset
}
