package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/izzyreal/nodeagent/internal/apiclient"
	"github.com/izzyreal/nodeagent/internal/config"
	"github.com/izzyreal/nodeagent/internal/hardware"
	"github.com/izzyreal/nodeagent/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextHeartbeatDelay(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		name     string
		deadline float64
		r        float64
		want     time.Duration
	}{
		{name: "lower bound", deadline: 1100, r: 0, want: 30 * time.Second},
		{name: "midpoint", deadline: 1100, r: 0.5, want: 45 * time.Second},
		{name: "fractional deadline", deadline: 1010.5, r: 0, want: 3150 * time.Millisecond},
		{name: "deadline now", deadline: 1000, r: 0.5, want: minHeartbeatDelay},
		{name: "deadline passed", deadline: 900, r: 0.9, want: minHeartbeatDelay},
		{name: "deadline too close", deadline: 1000.5, r: 1, want: minHeartbeatDelay},
		{name: "relative value from skewed server", deadline: 300, r: 0, want: minHeartbeatDelay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := nextHeartbeatDelay(tc.deadline, now, 0.3, 0.6, tc.r)
			if diff := got - tc.want; diff < -time.Microsecond || diff > time.Microsecond {
				t.Fatalf("nextHeartbeatDelay()=%s want %s", got, tc.want)
			}
		})
	}
}

type scriptedHeartbeater struct {
	mu      sync.Mutex
	calls   []string
	results []func() (float64, error)
}

func (s *scriptedHeartbeater) Heartbeat(_ context.Context, nodeUUID string, advertise apiclient.AdvertiseAddress) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.calls)
	s.calls = append(s.calls, nodeUUID+"@"+apiclient.AgentURL(advertise))
	if n < len(s.results) {
		return s.results[n]()
	}
	return 0, errors.New("unscripted heartbeat")
}

func TestHeartbeatLoopSchedulesFromDeadlineAndRetriesErrors(t *testing.T) {
	now := time.Unix(5000, 0)
	hb := &scriptedHeartbeater{results: []func() (float64, error){
		func() (float64, error) { return 5100, nil },
		func() (float64, error) { return 0, errors.New("connection refused") },
		func() (float64, error) { return 4000, nil },
	}}
	var logs bytes.Buffer
	loop := newHeartbeatLoop(hb, "node-1", apiclient.AdvertiseAddress{Host: "10.0.0.5", Port: 9999}, config.Heartbeat{
		MinFraction: 0.3,
		MaxFraction: 0.6,
		ErrorDelay:  config.Duration(5 * time.Second),
	}, slog.New(slog.NewTextHandler(&logs, nil)))
	loop.now = func() time.Time { return now }
	loop.rand = func() float64 { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var delays []time.Duration
	loop.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
			return make(chan time.Time)
		}
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}

	if err := loop.run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	want := []time.Duration{30 * time.Second, 5 * time.Second, minHeartbeatDelay}
	if len(delays) != len(want) {
		t.Fatalf("delays: got %v want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays: got %v want %v", delays, want)
		}
	}
	if len(hb.calls) != 3 || hb.calls[0] != "node-1@http://10.0.0.5:9999" {
		t.Fatalf("unexpected heartbeat calls %v", hb.calls)
	}
	if !strings.Contains(logs.String(), "heartbeat failed") {
		t.Fatalf("expected failed heartbeat to be logged, got %q", logs.String())
	}
}

func TestAdvertiseAddress(t *testing.T) {
	inv := hardware.Inventory{
		Hostname:   "host-a",
		Interfaces: []hardware.NetworkInterface{{Name: "eth0", MACAddress: "aa:bb:cc:00:00:01", IPv4Address: "10.0.0.5"}},
	}
	cfg := config.DefaultAgent()
	if got := advertiseAddress(cfg, inv); got.Host != "10.0.0.5" || got.Port != 9999 {
		t.Fatalf("expected inventory address, got %+v", got)
	}
	cfg.AdvertiseHost = "agent.example"
	cfg.AdvertisePort = 8443
	if got := advertiseAddress(cfg, inv); got.Host != "agent.example" || got.Port != 8443 {
		t.Fatalf("expected configured address, got %+v", got)
	}
	if got := advertiseAddress(config.DefaultAgent(), hardware.Inventory{Hostname: "host-b"}); got.Host != "host-b" {
		t.Fatalf("expected hostname fallback, got %+v", got)
	}
}

func TestResolveEndpoint(t *testing.T) {
	orig := discoverEndpoint
	t.Cleanup(func() { discoverEndpoint = orig })

	var gotService string
	discoverEndpoint = func(_ context.Context, service string, _ time.Duration) (string, error) {
		gotService = service
		return "http://10.0.0.2:6385", nil
	}

	cfg := config.DefaultAgent()
	cfg.APIURL = "http://api.example:6385"
	if got, err := resolveEndpoint(context.Background(), cfg, discardLogger()); err != nil || got != "http://api.example:6385" {
		t.Fatalf("expected configured url, got %q err=%v", got, err)
	}
	if gotService != "" {
		t.Fatalf("discovery should not run when api_url is set")
	}

	cfg.APIURL = ""
	if got, err := resolveEndpoint(context.Background(), cfg, discardLogger()); err != nil || got != "http://10.0.0.2:6385" {
		t.Fatalf("expected discovered url, got %q err=%v", got, err)
	}
	if gotService != config.DefaultService {
		t.Fatalf("unexpected discovery service %q", gotService)
	}

	cfg.Discovery.Enabled = false
	if _, err := resolveEndpoint(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatalf("expected error without api_url and discovery")
	}
}

func TestRunLooksUpThenHeartbeats(t *testing.T) {
	var heartbeats atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case protocol.LookupPath():
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"node":{"uuid":"node-run"},"heartbeat_timeout":1}`))
		case protocol.HeartbeatPath("node-run"):
			if heartbeats.Add(1) >= 3 {
				cancel()
			}
			deadline := float64(time.Now().Add(100*time.Millisecond).UnixMilli()) / 1000
			w.Header().Set(protocol.HeartbeatBeforeHeader, strconv.FormatFloat(deadline, 'f', 3, 64))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	cfg := config.DefaultAgent()
	cfg.APIURL = ts.URL
	cfg.AdvertiseHost = "127.0.0.1"

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, discardLogger()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if got := heartbeats.Load(); got < 3 {
		t.Fatalf("expected at least 3 heartbeats, got %d", got)
	}
}

func TestRunFailsWhenLookupTimesOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cfg := config.DefaultAgent()
	cfg.APIURL = ts.URL
	cfg.LookupTimeout = config.Duration(time.Millisecond)
	cfg.LookupInterval = config.Duration(time.Millisecond)

	err := Run(context.Background(), cfg, discardLogger())
	var lookupErr *apiclient.LookupNodeError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupNodeError, got %v", err)
	}
}
