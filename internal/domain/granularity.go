package domain

import (
	"fmt"
	"strings"
)

// Granularity is the width of a chart bucket.
type Granularity string

const (
	GranularityDay  Granularity = "day"
	GranularityHour Granularity = "hour"
)

// ParseGranularity accepts "day"/"daily" and "hour"/"hourly".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "1d":
		return GranularityDay, nil
	case "hour", "hourly", "1h":
		return GranularityHour, nil
	default:
		return "", fmt.Errorf("unknown granularity %q, expected day or hour", s)
	}
}

// KeyLayout is the time layout of a bucket key: YYYY-MM-DD or YYYY-MM-DD-HH.
func (g Granularity) KeyLayout() string {
	if g == GranularityHour {
		return "2006-01-02-15"
	}
	return "2006-01-02"
}

// ChartLayout is the time layout of the chart axis label for a bucket.
func (g Granularity) ChartLayout() string {
	if g == GranularityHour {
		return "01/02 15:00"
	}
	return "01/02/2006"
}

func (g Granularity) String() string {
	return string(g)
}
