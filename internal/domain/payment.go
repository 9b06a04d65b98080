/**
 * @description
 * This file defines the core domain models for the PSP fee reconciliation
 * service. These structs represent the entities used throughout the business
 * logic, database layer, and API surface.
 *
 * @notes
 * - Amounts are stored as `int64` in minor currency units (cents) to avoid
 *   floating-point inaccuracies with financial data.
 * - Payments are owned by the surrounding order system; this service only
 *   reads them and writes the derived `psp_fees` annotation back.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payment states mirroring the order system's payment lifecycle.
const (
	PaymentStateCreated   = "created"
	PaymentStatePending   = "pending"
	PaymentStateConfirmed = "confirmed"
	PaymentStateCanceled  = "canceled"
	PaymentStateFailed    = "failed"
	PaymentStateRefunded  = "refunded"
)

// Provider tags as recorded on payments by the order system.
const (
	ProviderMollie           = "mollie"
	ProviderMollieBancontact = "mollie_bancontact"
	ProviderMollieIdeal      = "mollie_ideal"
	ProviderMollieCreditcard = "mollie_creditcard"
	ProviderSumUp            = "sumup"
)

// SyncableProviders lists every provider tag the engine knows how to reconcile.
var SyncableProviders = []string{
	ProviderMollie,
	ProviderMollieBancontact,
	ProviderMollieIdeal,
	ProviderMollieCreditcard,
	ProviderSumUp,
}

// IsMollieProvider reports whether a provider tag belongs to the Mollie family.
func IsMollieProvider(provider string) bool {
	return provider == ProviderMollie || strings.HasPrefix(provider, "mollie_")
}

// Payment is the read-only view of an order payment. The engine never creates
// or deletes payments; it only writes the PSPFees annotation inside Info.
type Payment struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	OrderCode   string      `json:"order_code"`
	Provider    string      `json:"provider"`
	State       string      `json:"state"`
	AmountMinor int64       `json:"amount"` // minor units
	Currency    string      `json:"currency"`
	PaymentDate time.Time   `json:"payment_date"`
	Info        PaymentInfo `json:"info"`
}

// PaymentInfo is the provider-specific payload stored on a payment by its
// payment plugin, plus the fee annotation this service maintains.
type PaymentInfo struct {
	TransactionID    string               `json:"id,omitempty"`
	SumUpTransaction *SumUpTransactionRef `json:"sumup_transaction,omitempty"`
	PSPFees          *PSPFeeAnnotation    `json:"psp_fees,omitempty"`
}

// SumUpTransactionRef is the SumUp plugin's nested transaction reference.
type SumUpTransactionRef struct {
	ID              string `json:"id,omitempty"`
	TransactionCode string `json:"transaction_code,omitempty"`
}

// PSPFeeAnnotation is the derived fee block written back onto a payment after
// a successful sync. Amounts are decimal strings to stay stable across systems
// that read the payment payload.
type PSPFeeAnnotation struct {
	GrossAmount      string `json:"gross_amount"`
	SettlementAmount string `json:"settlement_amount"`
	FeeAmount        string `json:"fee_amount"`
	Currency         string `json:"currency"`
	FeeDetails       string `json:"fee_details"`
	SettlementID     string `json:"settlement_id"`
	SyncedAt         string `json:"synced_at"`
}

// ExternalTransactionID extracts the processor-side transaction identifier from
// the payment payload. SumUp nests it under sumup_transaction; Mollie and
// others store it directly as the payload id. Returns "" when absent.
func (p *Payment) ExternalTransactionID() string {
	if p.Provider == ProviderSumUp {
		if ref := p.Info.SumUpTransaction; ref != nil {
			if ref.TransactionCode != "" {
				return ref.TransactionCode
			}
			return ref.ID
		}
		return ""
	}
	return p.Info.TransactionID
}

// Synced reports whether the payment already carries a completed fee annotation.
func (p *Payment) Synced() bool {
	return p.Info.PSPFees != nil && p.Info.PSPFees.SyncedAt != ""
}

// FeeInternalType derives the fee-record internal type for this payment's provider.
func (p *Payment) FeeInternalType() string {
	return p.Provider + "_fee"
}
