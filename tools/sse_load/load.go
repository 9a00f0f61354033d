package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const dashboardEvent = "event: dashboard"

type loadConfig struct {
	targetURL   string
	connections int
	duration    time.Duration
	rampUp      time.Duration
}

type stats struct {
	start       time.Time
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

func newStats() *stats {
	return &stats{start: time.Now()}
}

func (s *stats) snapshot() (connected, connectErrs, streamErrs, events int64) {
	return s.connected.Load(), s.connectErrs.Load(), s.streamErrs.Load(), s.events.Load()
}

func (s *stats) summary() string {
	elapsed := time.Since(s.start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	connected, connectErrs, streamErrs, events := s.snapshot()
	return fmt.Sprintf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f",
		connected, connectErrs, streamErrs, events,
		elapsed.Truncate(time.Millisecond),
		float64(events)/elapsed.Seconds())
}

func newStreamingClient(connections int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
}

// runLoad opens cfg.connections streams, ramping up linearly, and blocks
// until every stream has ended.
func runLoad(ctx context.Context, cfg loadConfig, st *stats) {
	client := newStreamingClient(cfg.connections)

	var interval time.Duration
	if cfg.rampUp > 0 {
		interval = cfg.rampUp / time.Duration(cfg.connections)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.connections; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			stream(ctx, client, cfg.targetURL, st)
		}()
	}
	wg.Wait()
}

func stream(ctx context.Context, client *http.Client, url string, st *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		st.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		st.connectErrs.Add(1)
		return
	}
	st.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				st.streamErrs.Add(1)
			}
			return
		}
		if strings.TrimRight(line, "\r\n") == dashboardEvent {
			st.events.Add(1)
		}
	}
}
