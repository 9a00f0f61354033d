// Package purchases serves the upstream purchase payload through a time-bounded
// cache, sharing one in-flight fetch between concurrent callers.
package purchases

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/devusmanrafiq/lab-landing/internal/clients"
	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/storage/payloadcache"
	"github.com/devusmanrafiq/lab-landing/pkg/retrier"
)

const (
	flightKey = "purchases"

	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// Source is the only writer of its cache.
type Source struct {
	fetcher clients.PurchasesFetcher
	cache   *payloadcache.Cache
	retrier *retrier.Retrier
	group   singleflight.Group
	logger  *zap.Logger

	fetches atomic.Int64
}

// NewSource wires a fetcher to a cache. A nil retrier means three attempts one
// second apart; a nil logger discards output.
func NewSource(fetcher clients.PurchasesFetcher, cache *payloadcache.Cache, r *retrier.Retrier, logger *zap.Logger) *Source {
	if r == nil {
		r = retrier.NewFixed(DefaultAttempts, DefaultRetryDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		fetcher: fetcher,
		cache:   cache,
		retrier: r,
		logger:  logger,
	}
}

// GetPurchasePayload returns the cached payload while it is fresh, otherwise
// joins or starts the shared fetch. A caller whose ctx ends stops waiting; the
// fetch itself keeps going for the others and still fills the cache.
func (s *Source) GetPurchasePayload(ctx context.Context) (*domain.PurchasePayload, error) {
	if p, ok := s.cache.Fresh(); ok {
		s.logger.Debug("purchases cache hit")
		return p, nil
	}

	ch := s.group.DoChan(flightKey, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PurchasePayload), nil
	}
}

func (s *Source) fetch(ctx context.Context) (*domain.PurchasePayload, error) {
	// A flight that started just after another one finished finds the cache filled.
	if p, ok := s.cache.Fresh(); ok {
		return p, nil
	}

	s.logger.Debug("purchases cache miss, fetching")
	started := time.Now()

	attempts := 0
	p, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) (*domain.PurchasePayload, error) {
		attempts++
		s.fetches.Add(1)
		return s.fetcher.FetchPurchases(ctx)
	})
	if err != nil {
		if !domain.IsFetchError(err) {
			err = &domain.FetchError{Err: err}
		}
		s.logger.Error("purchases fetch failed",
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, errors.Wrapf(err, "fetch purchases after %d attempts", attempts)
	}

	s.cache.Set(p)
	s.logger.Info("purchases fetched",
		zap.Int("records", len(p.Records)),
		zap.Int("timeseries", len(p.Timeseries)),
		zap.Duration("took", time.Since(started)))

	return p, nil
}

// Invalidate forces the next call to fetch.
func (s *Source) Invalidate() {
	s.cache.Invalidate()
}

// Fetches counts upstream requests issued, retries included.
func (s *Source) Fetches() int64 {
	return s.fetches.Load()
}

// RetryLogger returns a retrier hook that logs each failed attempt.
func RetryLogger(logger *zap.Logger) retrier.Option {
	return retrier.WithOnRetry(func(attempt int, err error) {
		logger.Warn("purchases fetch attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
}
