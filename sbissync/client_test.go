package sbissync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*sbisClient, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	t.Setenv("SBIS_API_BASE_URL", ts.URL)
	t.Setenv("SBIS_RATE_LIMIT_PER_MIN", "600000")
	client, err := newSbisClient("test-token")
	if err != nil {
		t.Fatalf("newSbisClient: %v", err)
	}
	return client, ts
}

func TestSbisClient_Services(t *testing.T) {
	var gotPath, gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"services":[{"id":"svc-1","code":"sbis_online","name":"SBIS Online","price":1500.50}]}`))
	}))

	services, err := client.Services(context.Background(), "contract-42")
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	if gotPath != "/contract/contract-42/services" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(services))
	}
	if services[0].Code != "sbis_online" {
		t.Errorf("code = %q", services[0].Code)
	}
	if services[0].Price.String() != "1500.50" {
		t.Errorf("price = %q", services[0].Price.String())
	}
	if !services[0].Active() {
		t.Error("missing is_active should read as active")
	}
}

func TestSbisClient_InvoicesQuery(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"invoices":[]}`))
	}))

	invoices, err := client.Invoices(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Invoices: %v", err)
	}
	if len(invoices) != 0 {
		t.Errorf("expected no invoices, got %d", len(invoices))
	}
	if !strings.Contains(gotQuery, "status=all") || !strings.Contains(gotQuery, "limit=100") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestSbisClient_NonOKStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.Services(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestSbisClient_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"services":[]}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Services(ctx, "abc"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewSbisClient_RequiresToken(t *testing.T) {
	if _, err := newSbisClient(""); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := newSbisClient("   "); err == nil {
		t.Fatal("expected error for blank token")
	}
}
