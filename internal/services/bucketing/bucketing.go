// Package bucketing partitions purchase timeseries points into calendar day or
// hour buckets inside a retention window.
package bucketing

import (
	"slices"
	"time"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
)

// Bucketize groups the points that fall inside the last windowDays days by bucket
// key. Points with unparseable timestamps belong to no window and are dropped.
// A non-positive windowDays disables the cutoff.
func Bucketize(
	points []domain.TimeseriesPoint,
	windowDays int,
	g domain.Granularity,
	now time.Time,
	loc *time.Location,
) map[string][]domain.TimeseriesPoint {
	loc = location(loc)
	groups := make(map[string][]domain.TimeseriesPoint)
	cutoff := Cutoff(now, windowDays, loc)

	for _, point := range points {
		ts, ok := domain.ParseTimestamp(point.Time)
		if !ok {
			continue
		}
		if windowDays > 0 && ts.Before(cutoff) {
			continue
		}

		key := Key(ts, g, loc)
		groups[key] = append(groups[key], point)
	}

	return groups
}

// Cutoff is the oldest instant kept: now minus windowDays calendar days in loc.
func Cutoff(now time.Time, windowDays int, loc *time.Location) time.Time {
	return now.In(location(loc)).AddDate(0, 0, -windowDays)
}

// Key derives the bucket key from calendar fields in loc.
func Key(ts time.Time, g domain.Granularity, loc *time.Location) string {
	return ts.In(location(loc)).Format(g.KeyLayout())
}

// ParseKey reconstructs the start instant of the bucket a key names.
func ParseKey(key string, g domain.Granularity, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(g.KeyLayout(), key, location(loc))
}

// Sorted turns grouped points into buckets ordered by their reconstructed start
// time. Map iteration order is never relied on.
func Sorted(groups map[string][]domain.TimeseriesPoint, g domain.Granularity, loc *time.Location) []domain.Bucket {
	buckets := make([]domain.Bucket, 0, len(groups))
	for key, points := range groups {
		start, err := ParseKey(key, g, loc)
		if err != nil {
			// keys come from Key, so this only happens on a granularity mismatch
			continue
		}

		bucket := domain.Bucket{Key: key, StartedAt: start}
		for _, point := range points {
			bucket = bucket.Add(point)
		}
		buckets = append(buckets, bucket)
	}

	slices.SortFunc(buckets, func(a, b domain.Bucket) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return compareStrings(a.Key, b.Key)
	})

	return buckets
}

// Count returns the number of points across all groups.
func Count(groups map[string][]domain.TimeseriesPoint) int {
	n := 0
	for _, points := range groups {
		n += len(points)
	}
	return n
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
