// Package indicators computes moving averages over decimal series.
package indicators

import (
	"fmt"
	"strings"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// Method selects the moving average.
type Method string

const (
	MethodSMA Method = "sma"
	MethodEMA Method = "ema"
)

// ParseMethod accepts sma or ema, case-insensitively. Empty means sma.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodSMA:
		return MethodSMA, nil
	case MethodEMA:
		return MethodEMA, nil
	default:
		return "", fmt.Errorf("unknown moving average %q, expected sma or ema", s)
	}
}

// CalculateSMA calculates the Simple Moving Average for the given period.
func CalculateSMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if err := checkPeriod(values, period); err != nil {
		return nil, err
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(decimalsToFloat64(values))))

	return float64ToDecimals(out), nil
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if err := checkPeriod(values, period); err != nil {
		return nil, err
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(decimalsToFloat64(values))))

	return float64ToDecimals(out), nil
}

// MovingAverage runs method over values and returns the result together with
// its offset: result[i] belongs to values[i+offset].
func MovingAverage(method Method, values []decimal.Decimal, period int) ([]decimal.Decimal, int, error) {
	var (
		out []decimal.Decimal
		err error
	)
	switch method {
	case MethodEMA:
		out, err = CalculateEMA(values, period)
	case MethodSMA, "":
		out, err = CalculateSMA(values, period)
	default:
		return nil, 0, fmt.Errorf("unknown moving average %q", method)
	}
	if err != nil {
		return nil, 0, err
	}

	return out, len(values) - len(out), nil
}

func checkPeriod(values []decimal.Decimal, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}
	return nil
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i] = d.InexactFloat64()
	}
	return result
}

// float64ToDecimals drops float noise below 1e-8.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		result[i] = decimal.NewFromFloat(f).Round(8)
	}
	return result
}
