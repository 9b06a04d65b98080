package sumupclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "sup_key")
	c.Sleep = func(time.Duration) {}
	return c
}

func TestGetTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("transaction_code"); got != "TX-CODE-1" {
			t.Errorf("unexpected transaction_code %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sup_key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write([]byte(`{
			"id": "tx-1",
			"transaction_code": "TX-CODE-1",
			"amount": 25.00,
			"currency": "EUR",
			"status": "SUCCESSFUL",
			"payment_type": "ECOM",
			"events": [{"type": "PAYOUT", "amount": 24.38, "fee_amount": 0.62, "payout_id": 9}]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "TX-CODE-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.TransactionCode != "TX-CODE-1" {
		t.Errorf("unexpected code %q", tx.TransactionCode)
	}
	if len(tx.Events) != 1 || tx.Events[0].FeeAmount == nil || *tx.Events[0].FeeAmount != 0.62 {
		t.Errorf("unexpected events %+v", tx.Events)
	}
}

func TestGetTransactionEmptyBodyIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.GetTransaction(context.Background(), "TX-MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTransactionRetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(server.URL)
	client.Sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err := client.GetTransaction(context.Background(), "TX-LIMITED")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %d", len(want), len(slept))
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %s, got %s", i, want[i], slept[i])
		}
	}
}

func TestListTransactionsHistoryPaginates(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"items": [
				{"id": "tx-1", "transaction_code": "A", "amount": 1, "currency": "EUR", "status": "SUCCESSFUL", "timestamp": "2026-04-01T10:00:00Z"},
				{"id": "tx-2", "transaction_code": "B", "amount": 2, "currency": "EUR", "status": "SUCCESSFUL", "timestamp": "2026-04-02T10:00:00Z"}
			]}`))
			return
		}
		if got := r.URL.Query().Get("oldest_time"); got != "2026-04-02T10:00:00Z" {
			t.Errorf("expected cursor from last item, got %q", got)
		}
		w.Write([]byte(`{"items": [
			{"id": "tx-3", "transaction_code": "C", "amount": 3, "currency": "EUR", "status": "SUCCESSFUL", "timestamp": "2026-04-03T10:00:00Z"}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	transactions, err := client.ListTransactionsHistory(context.Background(), "", 2, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(transactions))
	}
	if calls != 2 {
		t.Errorf("expected 2 pages, got %d", calls)
	}
}
