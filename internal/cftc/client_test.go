package cftc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(baseURL string, retries int, delay time.Duration) *HTTPClient {
	logger, _ := zap.NewDevelopment()
	return NewClient(Options{
		BaseURL:         baseURL,
		AppToken:        "test-token",
		RatePerSecond:   100,
		Timeout:         5 * time.Second,
		RetryDelay:      delay,
		RetryCount:      retries,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}, logger)
}

func sampleReports() []Report {
	return []Report{
		{ReportDate: "2025-01-14T00:00:00.000", ContractMarketCode: "067651", MoneyLong: "300000", MoneyShort: "150000", OpenInterest: "500000"},
		{ReportDate: "2025-01-07T00:00:00.000", ContractMarketCode: "067651", MoneyLong: "280000", MoneyShort: "160000", OpenInterest: "490000"},
	}
}

func TestFetchReports_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-App-Token") != "test-token" {
			t.Errorf("expected app token header, got %q", r.Header.Get("X-App-Token"))
		}

		expectedPath := "/resource/72hh-3qpy.json"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}

		where := r.URL.Query().Get("$where")
		if !strings.Contains(where, "cftc_contract_market_code='067651'") {
			t.Errorf("expected market filter in $where, got %s", where)
		}
		if !strings.Contains(where, "between '2025-01-01T00:00:00.000' and '2025-01-31T00:00:00.000'") {
			t.Errorf("expected date range in $where, got %s", where)
		}
		if r.URL.Query().Get("$limit") != "50000" {
			t.Errorf("expected $limit 50000, got %s", r.URL.Query().Get("$limit"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sampleReports())
	}))
	defer server.Close()

	client := testClient(server.URL, 0, time.Millisecond)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	reports, err := client.FetchReports(context.Background(), "wti", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].MoneyLong != "300000" {
		t.Errorf("unexpected first report: %+v", reports[0])
	}
}

func TestFetchReports_EmptyIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := testClient(server.URL, 0, time.Millisecond)
	_, err := client.FetchReports(context.Background(), "brent", time.Now().AddDate(0, -1, 0), time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchReports_UnknownMarket(t *testing.T) {
	client := testClient("http://127.0.0.1:0", 0, time.Millisecond)
	_, err := client.FetchReports(context.Background(), "gold", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for unknown market")
	}
}

func TestFetchReports_AuthFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := testClient(server.URL, 2, time.Millisecond)
	_, err := client.FetchReports(context.Background(), "wti", time.Now(), time.Now())
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestFetchReports_RateLimited(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(server.URL, 2, 10*time.Millisecond)
	_, err := client.FetchReports(context.Background(), "wti", time.Now(), time.Now())
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited in chain, got %v", err)
	}

	// Should have attempted 3 times (initial + 2 retries)
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchReports_RetriesServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(sampleReports())
	}))
	defer server.Close()

	client := testClient(server.URL, 2, time.Millisecond)
	reports, err := client.FetchReports(context.Background(), "wti", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("expected recovery after retry, got %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("expected 2 reports, got %d", len(reports))
	}
}

func TestFetchReports_CircuitOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, 0, time.Millisecond)
	for i := 0; i < 3; i++ {
		_, _ = client.FetchReports(context.Background(), "wti", time.Now(), time.Now())
	}

	_, err := client.FetchReports(context.Background(), "wti", time.Now(), time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable once the breaker trips, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 requests to reach the server, got %d", got)
	}
}

func TestFetchReports_Observer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sampleReports())
	}))
	defer server.Close()

	var seen []string
	logger := zap.NewNop()
	client := NewClient(Options{
		BaseURL:       server.URL,
		RatePerSecond: 10,
		Timeout:       time.Second,
		Observer:      func(status string) { seen = append(seen, status) },
	}, logger)

	if _, err := client.FetchReports(context.Background(), "wti", time.Now(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "success" {
		t.Errorf("expected [success], got %v", seen)
	}
}
