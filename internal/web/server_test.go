package web

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
	"github.com/devusmanrafiq/lab-landing/internal/services/dashboard"
)

type fakeDashboard struct {
	mu         sync.Mutex
	state      dashboard.State
	loads      int
	refreshes  int
	refreshErr error
	subs       []chan struct{}
}

func (f *fakeDashboard) Snapshot() dashboard.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeDashboard) Load(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	f.state = loadedState()
	return nil
}

func (f *fakeDashboard) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		f.state.Err = f.refreshErr
		return f.refreshErr
	}
	f.state = loadedState()
	return nil
}

func (f *fakeDashboard) Subscribe() (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{}, 1)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeDashboard) set(state dashboard.State) {
	f.mu.Lock()
	f.state = state
	subs := append([]chan struct{}(nil), f.subs...)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *fakeDashboard) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func loadedState() dashboard.State {
	series := domain.NewChartSeries(3)
	series.Dates = []string{"01/01/2025", "01/02/2025", "01/03/2025"}
	series.Volume = []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.NewFromInt(30)}
	series.Revenue = []decimal.Decimal{decimal.RequireFromString("0.5"), decimal.NewFromInt(1), decimal.RequireFromString("1.5")}
	series.Percentage = []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(250), decimal.NewFromInt(250)}
	series.Trend = []decimal.Decimal{decimal.NewFromInt(15), decimal.NewFromInt(25)}
	series.TrendOffset = 1
	series.TotalDataPoints = 3
	series.FilteredDataPoints = 3
	series.DateRange = domain.DateRange{Start: "2025-01-01", End: "2025-01-03"}

	return dashboard.State{
		TableRows: []domain.TableRow{{ID: "a", AmountToken: "1.5M", Timestamp: 1}},
		ChartSeries: series,
		Cards: domain.SummaryCards{
			TotalPurchases:    "1.5M LAB",
			TotalPurchasesUSD: "$300",
			TotalSupply:       "1B LAB",
			CirculatingOffset: "0.15%",
		},
		Totals: &domain.Totals{
			TotalCount:             1,
			TotalBaseAmount:        decimal.NewFromInt(1_500_000),
			TotalQuoteAmountUSD:    decimal.NewFromInt(300),
			TotalCirculatingSupply: decimal.RequireFromString("0.15"),
		},
		UpdatedAt: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
}

func initialState() dashboard.State {
	return dashboard.State{
		TableRows:   []domain.TableRow{},
		ChartSeries: domain.NewChartSeries(0),
		IsLoading:   true,
	}
}

func newTestServer(f *fakeDashboard) *httptest.Server {
	return httptest.NewServer(NewServer(":0", f, zap.NewNop()).Handler())
}

func getDashboard(t *testing.T, url string) (int, dashboardResponse) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body dashboardResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandleDashboard_LoadsOnDemand(t *testing.T) {
	f := &fakeDashboard{state: initialState()}
	srv := newTestServer(f)
	defer srv.Close()

	status, body := getDashboard(t, srv.URL+"/api/dashboard")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, f.loads)

	assert.False(t, body.IsLoading)
	assert.Nil(t, body.Error)
	require.Len(t, body.TableRows, 1)
	assert.Equal(t, "1.5M", body.TableRows[0].AmountToken)
	assert.Equal(t, []float64{10, 20, 30}, body.ChartData.Volume)
	assert.Equal(t, []float64{100, 250, 250}, body.ChartData.Percentage)
	require.Len(t, body.ChartData.Trend, 3)
	assert.Nil(t, body.ChartData.Trend[0])
	require.NotNil(t, body.ChartData.Trend[2])
	assert.Equal(t, 25.0, *body.ChartData.Trend[2])
	require.NotNil(t, body.Totals)
	assert.Equal(t, 0.15, body.Totals.TotalCirculatingSupply)
	assert.Equal(t, "1.5M LAB", body.Cards.TotalPurchases)

	_, _ = getDashboard(t, srv.URL+"/api/dashboard")
	assert.Equal(t, 1, f.loads)
}

func TestHandleDashboard_ErrorState(t *testing.T) {
	f := &fakeDashboard{state: dashboard.State{
		TableRows:   []domain.TableRow{},
		ChartSeries: domain.NewChartSeries(0),
		Err:         &domain.FetchError{StatusCode: 500},
	}}
	srv := newTestServer(f)
	defer srv.Close()

	status, body := getDashboard(t, srv.URL+"/api/dashboard")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, f.loads)
	require.NotNil(t, body.Error)
	assert.Contains(t, *body.Error, "500")
	assert.NotNil(t, body.TableRows)
	assert.Empty(t, body.TableRows)
	assert.Empty(t, body.ChartData.Dates)
}

func TestHandleRefresh(t *testing.T) {
	f := &fakeDashboard{state: loadedState()}
	srv := newTestServer(f)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/dashboard/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.mu.Lock()
	assert.Equal(t, 1, f.refreshes)
	f.mu.Unlock()

	f.mu.Lock()
	f.refreshErr = errors.New("upstream down")
	f.mu.Unlock()
	resp, err = http.Post(srv.URL+"/api/dashboard/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body dashboardResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "upstream down", *body.Error)
	assert.Len(t, body.TableRows, 1)
}

func TestHandleRefresh_RejectsGet(t *testing.T) {
	srv := newTestServer(&fakeDashboard{state: loadedState()})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/dashboard/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeDashboard{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestStaticIndex(t *testing.T) {
	srv := newTestServer(&fakeDashboard{})
	defer srv.Close()

	t.Run("plain", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		req.Header.Set("Accept-Encoding", "identity")
		resp, err := http.DefaultTransport.RoundTrip(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "/api/dashboard/stream")
	})

	t.Run("gzip", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		resp, err := http.DefaultTransport.RoundTrip(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(resp.Body)
		require.NoError(t, err)
		body, _ := io.ReadAll(gz)
		assert.Contains(t, string(body), "<canvas id=\"chart\"")
	})
}

func TestStream(t *testing.T) {
	f := &fakeDashboard{state: initialState()}
	srv := newTestServer(f)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/dashboard/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(resp.Body)

	first := <-events
	assert.True(t, first.IsLoading)

	require.Eventually(t, func() bool { return f.subscribers() == 1 }, time.Second, time.Millisecond)
	f.set(loadedState())

	select {
	case second := <-events:
		assert.False(t, second.IsLoading)
		assert.Len(t, second.TableRows, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after state change")
	}
}

func readEvents(r io.Reader) <-chan dashboardResponse {
	out := make(chan dashboardResponse, 4)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		event := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && event == "dashboard":
				var body dashboardResponse
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &body) == nil {
					out <- body
				}
			}
		}
	}()
	return out
}

func TestWebSocketPush(t *testing.T) {
	f := &fakeDashboard{state: initialState()}
	s := NewServer(":0", f, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcast(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first dashboardResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, first.IsLoading)

	require.Eventually(t, func() bool { return f.subscribers() == 1 && s.keeper.count() == 1 }, time.Second, time.Millisecond)
	f.set(loadedState())

	var second dashboardResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&second))
	assert.False(t, second.IsLoading)
	assert.Equal(t, "$300", second.Cards.TotalPurchasesUSD)
}

func TestNewChartData_PadsTrend(t *testing.T) {
	data := newChartData(domain.NewChartSeries(0))
	assert.NotNil(t, data.Dates)
	assert.NotNil(t, data.Volume)
	assert.Empty(t, data.Trend)

	data = newChartData(loadedState().ChartSeries)
	require.Len(t, data.Trend, 3)
	assert.Nil(t, data.Trend[0])
	assert.Equal(t, 15.0, *data.Trend[1])
}

func TestStartWithAutoTLS_RequiresDomains(t *testing.T) {
	s := NewServer(":0", &fakeDashboard{}, nil)
	err := s.StartWithAutoTLS(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", &fakeDashboard{state: initialState()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
