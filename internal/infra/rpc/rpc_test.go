package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestClient_FailoverToSecondary verifies retry on the primary endpoint and
// failover to the secondary one.
func TestClient_FailoverToSecondary(t *testing.T) {
	primaryCalls := 0
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"blockID": "00ff"})
	}))
	defer secondary.Close()

	router := NewRouter()
	router.AddProvider("tron", NewHTTPProvider("primary", primary.URL, time.Second))
	router.AddProvider("tron", NewHTTPProvider("secondary", secondary.URL, time.Second))

	client := NewClient("tron", router).WithRetry(RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffMultiple: 1,
	})

	result, err := client.Execute(context.Background(), WalletCall("getnowblock", nil))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if m, ok := result.(map[string]any); !ok || m["blockID"] != "00ff" {
		t.Fatalf("unexpected result: %v", result)
	}
	if primaryCalls != 2 {
		t.Errorf("primary expected 2 attempts, got %d", primaryCalls)
	}

	stats := client.GetProviderStats()
	if _, ok := stats["secondary"]; !ok {
		t.Errorf("expected stats for secondary, got %v", stats)
	}
	if !strings.Contains(client.Dashboard(), "secondary") {
		t.Error("dashboard should list providers")
	}
}

func TestClient_AllProvidersFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	router := NewRouter()
	router.AddProvider("tron", NewHTTPProvider("only", server.URL, time.Second))
	client := NewClient("tron", router)

	_, err := client.Execute(context.Background(), WalletCall("getnowblock", nil))
	if err == nil || !strings.Contains(err.Error(), "wallet/getnowblock") {
		t.Fatalf("expected wrapped error naming the operation, got %v", err)
	}
}

func TestWalletCall(t *testing.T) {
	for _, endpoint := range []string{"gettransactioninfobyid", "wallet/gettransactioninfobyid"} {
		op := WalletCall(endpoint, map[string]any{"value": "ab"})
		if op.Name != "wallet/gettransactioninfobyid" || !op.IsREST || op.RESTMethod != "POST" {
			t.Errorf("WalletCall(%q) = %+v", endpoint, op)
		}
	}
}
