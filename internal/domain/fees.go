package domain

import (
	"time"

	"github.com/google/uuid"
)

// Fee result sources, recorded for auditability so operators can tell exact
// settlement-rate fees apart from estimates and cache replays.
const (
	FeeSourceSettlementRates = "settlement_rates"
	FeeSourceEstimated       = "estimated"
	FeeSourcePSPReported     = "psp_reported"
	FeeSourceCache           = "cache"
)

// FeeRecord is the durable fee row attached to a payment. At most one record
// exists per (payment, internal_type); sync upserts, never appends.
type FeeRecord struct {
	ID           uuid.UUID `json:"id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	InternalType string    `json:"internal_type"` // "{provider}_fee"
	Description  string    `json:"description"`
	AmountMinor  int64     `json:"amount"` // minor units
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FeeResult is the outcome of a gateway fee fetch/computation for a single
// external transaction.
type FeeResult struct {
	GrossMinor   int64  `json:"gross"`
	FeeMinor     int64  `json:"fee"`
	NetMinor     int64  `json:"net"`
	Currency     string `json:"currency"`
	SettlementID string `json:"settlement_id"`
	Status       string `json:"status"`
	Details      string `json:"details"` // human-readable explanation incl. path used
	Source       string `json:"source"`
}

// CachedTransactionFee is the short-TTL cache row for a previously computed fee
// result, keyed by (provider, transaction id). Losing this cache never changes
// correctness, only cost.
type CachedTransactionFee struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	Provider        string     `json:"provider"`
	TransactionID   string     `json:"transaction_id"`
	GrossMinor      int64      `json:"gross"`
	FeeMinor        int64      `json:"fee"`
	NetMinor        int64      `json:"net"`
	Currency        string     `json:"currency"`
	SettlementID    string     `json:"settlement_id"`
	Status          string     `json:"status"`
	FeeDetails      string     `json:"fee_details"`
	TransactionDate time.Time  `json:"transaction_date"`
	SettlementDate  *time.Time `json:"settlement_date,omitempty"`
	Created         time.Time  `json:"created"`
	Modified        time.Time  `json:"modified"` // drives the freshness window
}

// Result converts a cache row back into a FeeResult for cache hits.
func (c *CachedTransactionFee) Result() *FeeResult {
	return &FeeResult{
		GrossMinor:   c.GrossMinor,
		FeeMinor:     c.FeeMinor,
		NetMinor:     c.NetMinor,
		Currency:     c.Currency,
		SettlementID: c.SettlementID,
		Status:       c.Status,
		Details:      c.FeeDetails,
		Source:       FeeSourceCache,
	}
}
