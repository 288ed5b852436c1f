// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keyward/keyward/internal/auth"
)

func ready(context.Context) error { return nil }

func startServer(t *testing.T, checker ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", checker, nil)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, ready)
	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}

	metrics := server.Metrics()
	metrics.RecordOperation("login", nil)
	metrics.SessionOpened()

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	for _, want := range []string{"# HELP", "# TYPE", "go_", "process_", "keyward_auth_operations_total", "keyward_sessions_opened_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name    string
		checker ReadinessChecker
		status  int
		body    string
	}{
		{"ready", ready, http.StatusOK, "ok"},
		{"nil checker", nil, http.StatusOK, "ok"},
		{"store down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable, "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", tt.checker, nil)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if strings.TrimSpace(rec.Body.String()) != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestServer_ReadinessTimeout(t *testing.T) {
	server := NewServer("127.0.0.1:0", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	server.ReadinessTimeout = 20 * time.Millisecond

	rec := httptest.NewRecorder()
	start := time.Now()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("readiness probe ran %v past its timeout", elapsed)
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	// Closing the listener under Serve simulates an unexpected failure.
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error from the error channel after closing listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestMetrics_RecordOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation("login", nil)
	m.RecordOperation("login", nil)
	m.RecordOperation("login", fmt.Errorf("bad password: %w", auth.ErrAuthentication))
	m.RecordOperation("register", fmt.Errorf("short: %w", auth.ErrValidation))
	m.RecordOperation("register", errors.New("boom"))

	checks := []struct {
		operation, outcome string
		want               float64
	}{
		{"login", OutcomeOK, 2},
		{"login", auth.KindAuthentication, 1},
		{"register", auth.KindValidation, 1},
		{"register", auth.KindUnknown, 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(m.Operations.WithLabelValues(c.operation, c.outcome)); got != c.want {
			t.Errorf("operations{%s,%s} = %v, want %v", c.operation, c.outcome, got, c.want)
		}
	}
	if got := testutil.ToFloat64(m.ValidationRejections.WithLabelValues("register")); got != 1 {
		t.Errorf("validation rejections = %v, want 1", got)
	}
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	var observer auth.Observer = m

	observer.SessionOpened()
	observer.SessionOpened()
	observer.SuspiciousLoginFailures()

	if got := testutil.ToFloat64(m.SessionsOpened); got != 2 {
		t.Errorf("sessions opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SuspiciousFailures); got != 1 {
		t.Errorf("suspicious failures = %v, want 1", got)
	}
}
