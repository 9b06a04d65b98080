package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxSyncErrors bounds the per-payment error list carried in a SyncResult so a
// pathological batch cannot balloon the aggregate.
const maxSyncErrors = 100

// SyncOptions controls a sync run over an explicit payment set.
type SyncOptions struct {
	Force             bool `json:"force"`
	DryRun            bool `json:"dry_run"`
	SkipAlreadySynced bool `json:"skip_already_synced"`
}

// DateRangeSyncOptions controls a date-bounded sync for one tenant.
// DaysBack, when set, overrides From/To.
type DateRangeSyncOptions struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	DaysBack    int        `json:"days_back,omitempty"`
	Force       bool       `json:"force"`
	DryRun      bool       `json:"dry_run"`
	MaxPayments int        `json:"max_payments,omitempty"`
}

// SyncError records one payment that failed during a batch.
type SyncError struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Error     string    `json:"error"`
}

// SyncResult aggregates the outcome of one sync run. It is transient: created
// fresh per invocation and never persisted.
type SyncResult struct {
	TotalPayments   int         `json:"total_payments"`
	SyncedPayments  int         `json:"synced_payments"`
	SkippedPayments int         `json:"skipped_payments"`
	FailedPayments  int         `json:"failed_payments"`
	TotalFeesMinor  int64       `json:"total_fees"`
	Errors          []SyncError `json:"errors,omitempty"`
}

// AddSuccess counts a synchronized payment and accumulates its fee.
func (r *SyncResult) AddSuccess(feeMinor int64) {
	r.SyncedPayments++
	r.TotalFeesMinor += feeMinor
}

// AddSkip counts an ignored payment.
func (r *SyncResult) AddSkip() {
	r.SkippedPayments++
}

// AddError counts a failed payment and records its reason, bounded by maxSyncErrors.
func (r *SyncResult) AddError(paymentID uuid.UUID, reason string) {
	r.FailedPayments++
	if len(r.Errors) < maxSyncErrors {
		r.Errors = append(r.Errors, SyncError{PaymentID: paymentID, Error: reason})
	}
}

func (r *SyncResult) String() string {
	return fmt.Sprintf(
		"sync result: %d/%d payments synced, %d skipped, %d failed, total fees %s",
		r.SyncedPayments, r.TotalPayments, r.SkippedPayments, r.FailedPayments,
		FormatMinorUnits(r.TotalFeesMinor),
	)
}
