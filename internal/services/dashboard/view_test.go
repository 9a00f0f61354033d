package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devusmanrafiq/lab-landing/internal/clients"
	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/aggregator"
	"github.com/devusmanrafiq/lab-landing/internal/services/projection"
	"github.com/devusmanrafiq/lab-landing/internal/services/purchases"
	"github.com/devusmanrafiq/lab-landing/internal/storage/payloadcache"
	"github.com/devusmanrafiq/lab-landing/pkg/retrier"
)

var testNow = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	payload *domain.PurchasePayload
	err     error
	gate    chan struct{}
}

func (s *stubFetcher) FetchPurchases(ctx context.Context) (*domain.PurchasePayload, error) {
	s.mu.Lock()
	s.calls++
	gate, payload, err := s.gate, s.payload, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return payload, err
}

func (s *stubFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ clients.PurchasesFetcher = (*stubFetcher)(nil)

func samplePayload() *domain.PurchasePayload {
	return &domain.PurchasePayload{
		Records: []domain.PurchaseRecord{{
			ID:             "a",
			BaseAmount:     decimal.NewFromInt(1_500_000),
			QuoteAmount:    decimal.RequireFromString("2.5"),
			QuoteAmountUSD: decimal.NewFromInt(300),
			Price:          decimal.RequireFromString("0.002"),
		}},
		Timeseries: []domain.TimeseriesPoint{
			{QuoteAmount: decimal.NewFromInt(100), Time: "2025-01-01T10:00:00Z"},
			{QuoteAmount: decimal.NewFromInt(50), Time: "2025-01-01T14:00:00Z"},
		},
		TotalCount:             1,
		TotalBaseAmount:        decimal.NewFromInt(1_500_000),
		TotalQuoteAmountUSD:    decimal.NewFromInt(300),
		TotalCirculatingSupply: decimal.RequireFromString("0.15"),
	}
}

func testOptions() Options {
	now := func() time.Time { return testNow }
	return Options{
		WindowDays: 30,
		Aggregation: aggregator.Options{
			FeeRate:     decimal.RequireFromString("0.05"),
			Granularity: domain.GranularityDay,
			Location:    time.UTC,
			TrendPeriod: 7,
		},
		Rows: projection.Options{
			PricePrecision: 3,
			FeeRate:        decimal.RequireFromString("0.05"),
			QuoteSymbol:    "BNB",
			Location:       time.UTC,
		},
		Cards: projection.CardOptions{TokenSymbol: "LAB", TotalSupply: decimal.NewFromInt(1_000_000_000)},
		Now:   now,
	}
}

func newTestView(f *stubFetcher) (*View, *purchases.Source) {
	src := purchases.NewSource(f, payloadcache.New(time.Minute), retrier.NewFixed(3, time.Millisecond), zap.NewNop())
	return NewView(src, testOptions(), zap.NewNop()), src
}

func TestView_InitialState(t *testing.T) {
	v, _ := newTestView(&stubFetcher{payload: samplePayload()})

	state := v.Snapshot()
	assert.True(t, state.IsLoading)
	assert.NoError(t, state.Err)
	assert.NotNil(t, state.TableRows)
	assert.Empty(t, state.TableRows)
	assert.Equal(t, 0, state.ChartSeries.Len())
	assert.Equal(t, "0 LAB", state.Cards.TotalPurchases)
	assert.Nil(t, state.Totals)
	assert.NotEmpty(t, v.ID())
}

func TestView_Load(t *testing.T) {
	v, _ := newTestView(&stubFetcher{payload: samplePayload()})

	require.NoError(t, v.Load(context.Background()))

	state := v.Snapshot()
	assert.False(t, state.IsLoading)
	assert.NoError(t, state.Err)
	assert.Equal(t, testNow, state.UpdatedAt)

	require.Len(t, state.TableRows, 1)
	assert.Equal(t, "1.5M", state.TableRows[0].AmountToken)

	require.Equal(t, 1, state.ChartSeries.Len())
	assert.Equal(t, "01/01/2025", state.ChartSeries.Dates[0])
	assert.Equal(t, "150", state.ChartSeries.Volume[0].String())
	assert.Equal(t, "100", state.ChartSeries.Percentage[0].String())

	require.NotNil(t, state.Totals)
	assert.Equal(t, int64(1), state.Totals.TotalCount)
	assert.Equal(t, "1.5M LAB", state.Cards.TotalPurchases)
	assert.Equal(t, "0.15%", state.Cards.CirculatingOffset)
}

func TestView_LoadTwiceUsesCacheAndMemo(t *testing.T) {
	f := &stubFetcher{payload: samplePayload()}
	v, _ := newTestView(f)

	require.NoError(t, v.Load(context.Background()))
	first := v.Snapshot()
	require.NoError(t, v.Load(context.Background()))
	second := v.Snapshot()

	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, int64(1), v.derivations.Load())
	assert.Equal(t, first.TableRows, second.TableRows)
	assert.Equal(t, first.ChartSeries, second.ChartSeries)
}

func TestView_RefreshRefetches(t *testing.T) {
	f := &stubFetcher{payload: samplePayload()}
	v, _ := newTestView(f)

	require.NoError(t, v.Load(context.Background()))

	f.mu.Lock()
	f.payload = samplePayload()
	f.mu.Unlock()

	require.NoError(t, v.Refresh(context.Background()))
	assert.Equal(t, 2, f.Calls())
	assert.Equal(t, int64(2), v.derivations.Load())
}

func TestView_TerminalFetchError(t *testing.T) {
	f := &stubFetcher{err: &domain.FetchError{StatusCode: 500}}
	v, _ := newTestView(f)

	err := v.Load(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsFetchError(err))
	assert.Equal(t, 3, f.Calls())

	state := v.Snapshot()
	assert.False(t, state.IsLoading)
	require.Error(t, state.Err)
	assert.NotNil(t, state.TableRows)
	assert.Empty(t, state.TableRows)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, f.Calls())
}

func TestView_ErrorKeepsPreviousData(t *testing.T) {
	f := &stubFetcher{payload: samplePayload()}
	v, _ := newTestView(f)
	require.NoError(t, v.Load(context.Background()))

	f.mu.Lock()
	f.payload, f.err = nil, &domain.FetchError{StatusCode: 502}
	f.mu.Unlock()

	require.Error(t, v.Refresh(context.Background()))

	state := v.Snapshot()
	assert.Error(t, state.Err)
	assert.Len(t, state.TableRows, 1)
}

func TestView_MalformedPayloadDegrades(t *testing.T) {
	p := samplePayload()
	p.Timeseries = nil
	v, _ := newTestView(&stubFetcher{payload: p})

	require.NoError(t, v.Load(context.Background()))

	state := v.Snapshot()
	assert.False(t, state.IsLoading)
	assert.NoError(t, state.Err)
	assert.Empty(t, state.TableRows)
	assert.Equal(t, 0, state.ChartSeries.Len())
	assert.Equal(t, "0 LAB", state.Cards.TotalPurchases)
}

func TestView_EmptyPayload(t *testing.T) {
	v, _ := newTestView(&stubFetcher{payload: &domain.PurchasePayload{
		Records:    []domain.PurchaseRecord{},
		Timeseries: []domain.TimeseriesPoint{},
	}})

	require.NoError(t, v.Load(context.Background()))

	state := v.Snapshot()
	assert.Empty(t, state.TableRows)
	assert.Equal(t, 0, state.ChartSeries.Len())
	assert.Equal(t, "$0", state.Cards.TotalPurchasesUSD)
}

func TestView_CloseDiscardsInFlightLoad(t *testing.T) {
	f := &stubFetcher{payload: samplePayload(), gate: make(chan struct{})}
	v, _ := newTestView(f)

	errCh := make(chan error, 1)
	go func() { errCh <- v.Load(context.Background()) }()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)
	v.Close()
	close(f.gate)

	assert.ErrorIs(t, <-errCh, domain.ErrViewClosed)
	assert.Empty(t, v.Snapshot().TableRows)
	assert.ErrorIs(t, v.Load(context.Background()), domain.ErrViewClosed)
}

func TestView_CancelledLoadDoesNotMutate(t *testing.T) {
	f := &stubFetcher{payload: samplePayload(), gate: make(chan struct{})}
	v, _ := newTestView(f)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- v.Load(ctx) }()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	state := v.Snapshot()
	assert.Empty(t, state.TableRows)
	assert.NoError(t, state.Err)
	close(f.gate)
}

func TestView_Subscribe(t *testing.T) {
	v, _ := newTestView(&stubFetcher{payload: samplePayload()})

	ch, unsubscribe := v.Subscribe()
	require.NoError(t, v.Load(context.Background()))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected state change notification")
	}

	unsubscribe()
	unsubscribe()
	assertClosed(t, ch)

	other, _ := v.Subscribe()
	v.Close()
	assertClosed(t, other)

	closed, _ := v.Subscribe()
	assertClosed(t, closed)
}

func assertClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel was not closed")
		}
	}
}

func TestView_Run(t *testing.T) {
	f := &stubFetcher{payload: samplePayload()}
	src := purchases.NewSource(f, payloadcache.New(time.Millisecond), retrier.NewFixed(1, time.Millisecond), zap.NewNop())
	opts := testOptions()
	opts.RefreshInterval = 5 * time.Millisecond
	v := NewView(src, opts, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var runErr atomic.Value
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := v.Run(ctx); err != nil {
			runErr.Store(err)
		}
	}()

	require.Eventually(t, func() bool { return f.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, context.Canceled, runErr.Load())
	assert.False(t, v.Snapshot().IsLoading)
}

func TestView_RunStopsOnClose(t *testing.T) {
	v, _ := newTestView(&stubFetcher{payload: samplePayload()})

	done := make(chan error, 1)
	go func() { done <- v.Run(context.Background()) }()

	require.Eventually(t, func() bool { return !v.Snapshot().IsLoading }, time.Second, time.Millisecond)
	v.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after close")
	}
}

type gatedSource struct {
	gate    chan struct{}
	payload *domain.PurchasePayload
}

func (g *gatedSource) GetPurchasePayload(ctx context.Context) (*domain.PurchasePayload, error) {
	select {
	case <-g.gate:
		return g.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestView_ConcurrentLoadsDeriveOnce(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{}), payload: samplePayload()}
	v := NewView(src, testOptions(), zap.NewNop())
	defer v.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- v.Load(context.Background())
		}()
	}

	require.Eventually(t, func() bool {
		v.mu.RLock()
		defer v.mu.RUnlock()
		return v.pending == 4
	}, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), v.derivations.Load())
	assert.Len(t, v.Snapshot().TableRows, 1)
}
