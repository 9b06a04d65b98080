/**
 * @description
 * This package provides a client for the SumUp-style processor API (v0.1).
 * Transactions are looked up by transaction code against the merchant's own
 * account, with the same bounded retry policy the Mollie client applies.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: Typed wire schemas for the processor resources.
 */
package sumupclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

var (
	// ErrNotFound means no transaction matches the given code.
	ErrNotFound = errors.New("sumup transaction not found")

	// ErrTransient wraps failures that persisted through every retry attempt.
	ErrTransient = errors.New("sumup api transient failure")
)

const defaultBaseURL = "https://api.sumup.com/v0.1"

// Client is a client for the SumUp API, authenticated with the merchant's
// API key.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	// MaxRetries is the total number of attempts per request.
	MaxRetries    int
	BackoffFactor float64
	Sleep         func(time.Duration)
}

// NewClient creates a new SumUp API client with the default retry policy.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxRetries:    3,
		BackoffFactor: 2,
		Sleep:         time.Sleep,
	}
}

// GetTransaction fetches the full transaction (events included) for a
// transaction code.
func (c *Client) GetTransaction(ctx context.Context, transactionCode string) (*domain.SumUpTransaction, error) {
	endpoint := fmt.Sprintf("%s/me/transactions?transaction_code=%s", c.BaseURL, url.QueryEscape(transactionCode))
	var tx domain.SumUpTransaction
	if err := c.getJSON(ctx, endpoint, &tx); err != nil {
		return nil, err
	}
	if tx.ID == "" && tx.TransactionCode == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionCode)
	}
	return &tx, nil
}

// ListTransactionsHistory pages through the merchant's transaction history
// starting at oldestTime (RFC3339), bounded by maxPages.
func (c *Client) ListTransactionsHistory(ctx context.Context, oldestTime string, limit, maxPages int) ([]domain.SumUpTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	var transactions []domain.SumUpTransaction
	cursor := oldestTime
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		endpoint := fmt.Sprintf("%s/me/transactions/history?order=ascending&limit=%d", c.BaseURL, limit)
		if cursor != "" {
			endpoint += "&oldest_time=" + url.QueryEscape(cursor)
		}

		var result domain.SumUpTransactionHistoryPage
		if err := c.getJSON(ctx, endpoint, &result); err != nil {
			return nil, err
		}
		if len(result.Items) == 0 {
			break
		}
		transactions = append(transactions, result.Items...)
		if len(result.Items) < limit {
			break
		}
		cursor = result.Items[len(result.Items)-1].Timestamp
		if cursor == "" {
			break
		}
	}
	return transactions, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(c.BackoffFactor, float64(attempt-2))) * time.Second
			log.Printf("level=warn component=sumupclient msg=\"retrying request\" attempt=%d backoff=%s url=%s", attempt, backoff, endpoint)
			c.Sleep(backoff)
		}

		retryable, err := c.doGet(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrTransient, attempts, lastErr)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
