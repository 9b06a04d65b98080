/**
 * @description
 * This package provides a client for the Mollie-style processor API (v2).
 * It encapsulates the logic for making authenticated HTTP requests to the
 * payment, settlement and balance-transaction endpoints, including the bounded
 * retry policy applied to rate-limited and transient failures.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: Typed wire schemas for the processor resources.
 */
package mollieclient

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
	// ErrNotFound means the resource does not exist (HTTP 404/410). Not retried.
	ErrNotFound = errors.New("mollie resource not found")

	// ErrTransient wraps failures that persisted through every retry attempt
	// (rate limits, 5xx responses, network errors).
	ErrTransient = errors.New("mollie api transient failure")
)

const defaultBaseURL = "https://api.mollie.com/v2"

// Client is a client for the Mollie API. Payment reads authenticate with the
// tenant API key; settlement reads require the OAuth access token.
type Client struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	HTTPClient  *http.Client

	// MaxRetries is the total number of attempts per request, not the number
	// of re-tries after the first. BackoffFactor grows the sleep between
	// attempts exponentially (factor^0, factor^1, ... seconds).
	MaxRetries    int
	BackoffFactor float64

	// Sleep is swapped out in tests to avoid real backoff delays.
	Sleep func(time.Duration)
}

// NewClient creates a new Mollie API client with the default retry policy.
func NewClient(baseURL, apiKey, accessToken string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		AccessToken: accessToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxRetries:    3,
		BackoffFactor: 2,
		Sleep:         time.Sleep,
	}
}

// GetPayment fetches a payment resource by its processor id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.MolliePayment, error) {
	var payment domain.MolliePayment
	endpoint := fmt.Sprintf("%s/payments/%s", c.BaseURL, url.PathEscape(paymentID))
	if err := c.getJSON(ctx, endpoint, c.APIKey, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetSettlement fetches a settlement resource. Settlements are only visible to
// OAuth-authorized apps, so this call always uses the access token.
func (c *Client) GetSettlement(ctx context.Context, settlementID string) (*domain.MollieSettlement, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("settlement access requires an oauth token")
	}
	var settlement domain.MollieSettlement
	endpoint := fmt.Sprintf("%s/settlements/%s", c.BaseURL, url.PathEscape(settlementID))
	if err := c.getJSON(ctx, endpoint, c.AccessToken, &settlement); err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ListBalanceTransactions walks the balance-transactions report for a balance,
// following pagination cursors until the report is exhausted or maxPages is hit.
func (c *Client) ListBalanceTransactions(ctx context.Context, balanceID string, maxPages int) ([]domain.MollieBalanceTransaction, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("balance report access requires an oauth token")
	}
	endpoint := fmt.Sprintf("%s/balances/%s/transactions", c.BaseURL, url.PathEscape(balanceID))

	var transactions []domain.MollieBalanceTransaction
	for page := 0; endpoint != "" && (maxPages <= 0 || page < maxPages); page++ {
		var result domain.MollieBalanceTransactionPage
		if err := c.getJSON(ctx, endpoint, c.AccessToken, &result); err != nil {
			return nil, err
		}
		transactions = append(transactions, result.Embedded.BalanceTransactions...)
		endpoint = result.Links.Next.Href
	}
	return transactions, nil
}

// getJSON performs a GET with the bounded retry policy and decodes the 200
// response into out. 404/410 map to ErrNotFound immediately; 429, 5xx and
// network errors are retried with exponential backoff until the attempt budget
// is exhausted, then surface wrapped in ErrTransient.
func (c *Client) getJSON(ctx context.Context, endpoint, bearer string, out interface{}) error {
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(c.BackoffFactor, float64(attempt-2))) * time.Second
			log.Printf("level=warn component=mollieclient msg=\"retrying request\" attempt=%d backoff=%s url=%s", attempt, backoff, endpoint)
			c.Sleep(backoff)
		}

		retryable, err := c.doGet(ctx, endpoint, bearer, out)
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

// doGet executes one attempt. The boolean reports whether the failure is
// worth retrying.
func (c *Client) doGet(ctx context.Context, endpoint, bearer string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
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
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
