// Package dashboard keeps one consumer's derived dashboard state: table rows,
// chart series and summary cards, recomputed only when a new payload arrives.
package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/aggregator"
	"github.com/devusmanrafiq/lab-landing/internal/services/projection"
)

// DefaultRefreshInterval matches the payload stale window.
const DefaultRefreshInterval = 5 * time.Minute

// PayloadSource provides the upstream payload.
type PayloadSource interface {
	GetPurchasePayload(ctx context.Context) (*domain.PurchasePayload, error)
}

type invalidator interface {
	Invalidate()
}

// Options configure derivation and refresh.
type Options struct {
	WindowDays      int
	Aggregation     aggregator.Options
	Rows            projection.Options
	Cards           projection.CardOptions
	RefreshInterval time.Duration
	Now             func() time.Time
}

// State is a point-in-time copy of the view. Slices are shared and must not be modified.
type State struct {
	TableRows   []domain.TableRow
	ChartSeries domain.ChartSeries
	Cards       domain.SummaryCards
	Totals      *domain.Totals
	IsLoading   bool
	Err         error
	UpdatedAt   time.Time
}

type derived struct {
	rows   []domain.TableRow
	series domain.ChartSeries
	cards  domain.SummaryCards
	totals *domain.Totals
}

// View is safe for concurrent use.
type View struct {
	id     string
	source PayloadSource
	opts   Options
	logger *zap.Logger

	mu        sync.RWMutex
	payload   *domain.PurchasePayload
	derived   derived
	pending   int
	loaded    bool
	err       error
	updatedAt time.Time
	closed    bool
	done      chan struct{}
	subs      map[chan struct{}]struct{}

	// applyMu serializes the memo check, derivation and apply of successful
	// loads so one payload pointer is derived once.
	applyMu     sync.Mutex
	derivations atomic.Int64
}

// NewView creates a view that has not loaded yet; its state reports loading.
func NewView(source PayloadSource, opts Options, logger *zap.Logger) *View {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rows.Now == nil {
		opts.Rows.Now = opts.Now
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.NewString()
	v := &View{
		id:     id,
		source: source,
		opts:   opts,
		logger: logger.With(zap.String("view", id)),
		done:   make(chan struct{}),
		subs:   make(map[chan struct{}]struct{}),
	}
	v.derived = v.empty()

	return v
}

// ID identifies the view in logs.
func (v *View) ID() string {
	return v.id
}

// Snapshot returns the current state.
func (v *View) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return State{
		TableRows:   v.derived.rows,
		ChartSeries: v.derived.series,
		Cards:       v.derived.cards,
		Totals:      v.derived.totals,
		IsLoading:   v.pending > 0 || (!v.loaded && v.err == nil),
		Err:         v.err,
		UpdatedAt:   v.updatedAt,
	}
}

// Load fetches the payload and applies it. The result is dropped when the view
// was closed or ctx ended while the fetch was in flight.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	v.pending++
	v.notifyLocked()
	v.mu.Unlock()

	payload, err := v.source.GetPurchasePayload(ctx)

	var next derived
	fresh := false
	if err == nil && ctx.Err() == nil {
		v.applyMu.Lock()
		defer v.applyMu.Unlock()

		v.mu.RLock()
		fresh = payload != v.payload
		v.mu.RUnlock()
		if fresh {
			next = v.derive(payload)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.pending--
	switch {
	case v.closed:
		return domain.ErrViewClosed
	case ctx.Err() != nil:
		v.notifyLocked()
		return ctx.Err()
	case err != nil:
		v.err = err
		v.notifyLocked()
		v.logger.Error("dashboard load failed", zap.Error(err))
		return err
	}

	if fresh && payload != v.payload {
		v.payload = payload
		v.derived = next
	}
	v.loaded = true
	v.err = nil
	v.updatedAt = v.opts.Now()
	v.notifyLocked()

	return nil
}

// Refresh invalidates the source cache, when it has one, and loads.
func (v *View) Refresh(ctx context.Context) error {
	if inv, ok := v.source.(invalidator); ok {
		inv.Invalidate()
	}
	return v.Load(ctx)
}

// Run loads immediately and then on every refresh interval until ctx ends or
// the view is closed. Load failures are logged and the loop continues.
func (v *View) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.opts.RefreshInterval)
	defer ticker.Stop()

	v.logger.Info("starting dashboard refresh loop", zap.Duration("interval", v.opts.RefreshInterval))

	for {
		if err := v.Load(ctx); err != nil {
			switch {
			case errors.Is(err, domain.ErrViewClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			v.logger.Info("context done, stopping dashboard refresh loop")
			return ctx.Err()
		case <-v.done:
			return nil
		case <-ticker.C:
		}
	}
}

// Subscribe returns a channel signalled after every state change and a func
// to stop listening. The channel is closed when the view closes.
func (v *View) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		close(ch)
		return ch, func() {}
	}
	v.subs[ch] = struct{}{}

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[ch]; ok {
			delete(v.subs, ch)
			close(ch)
		}
	}
}

// Close disposes the view. Loads still in flight are discarded.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.done)
	for ch := range v.subs {
		delete(v.subs, ch)
		close(ch)
	}
}

func (v *View) notifyLocked() {
	for ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (v *View) derive(p *domain.PurchasePayload) derived {
	v.derivations.Add(1)

	if err := p.Validate(); err != nil {
		v.logger.Warn("purchase payload is malformed, showing empty dashboard", zap.Error(err))
		return v.empty()
	}

	now := v.opts.Now()
	totals := p.Totals()

	return derived{
		rows:   projection.ProjectRows(p.Records, p.Timeseries, v.opts.Rows),
		series: aggregator.FromPayload(p, v.opts.WindowDays, now, v.opts.Aggregation),
		cards:  projection.SummaryCards(totals, v.opts.Cards),
		totals: totals,
	}
}

func (v *View) empty() derived {
	return derived{
		rows:   []domain.TableRow{},
		series: domain.NewChartSeries(0),
		cards:  projection.SummaryCards(nil, v.opts.Cards),
	}
}
