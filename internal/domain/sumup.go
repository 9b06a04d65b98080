/**
 * @description
 * Typed wire schemas for the SumUp-style processor API (v0.1). SumUp sends
 * amounts as JSON numbers, so the wire types use float64 and conversion to
 * minor units happens in the fee engine.
 */

package domain

// SumUpEvent is one payout/charge event attached to a transaction. FeeAmount,
// when present on a payout event, is the processor's authoritative fee.
type SumUpEvent struct {
	ID              int64    `json:"id,omitempty"`
	Type            string   `json:"type"`
	Status          string   `json:"status,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	FeeAmount       *float64 `json:"fee_amount,omitempty"`
	PayoutID        int64    `json:"payout_id,omitempty"`
	PayoutReference string   `json:"payout_reference,omitempty"`
}

// SumUpTransaction is the transaction resource returned by
// GET /me/transactions?transaction_code=...
type SumUpTransaction struct {
	ID              string       `json:"id"`
	TransactionCode string       `json:"transaction_code"`
	Amount          float64      `json:"amount"`
	Currency        string       `json:"currency"`
	Status          string       `json:"status"`
	SimpleStatus    string       `json:"simple_status,omitempty"`
	PaymentType     string       `json:"payment_type,omitempty"`
	Timestamp       string       `json:"timestamp,omitempty"`
	Events          []SumUpEvent `json:"events,omitempty"`
}

// SumUpTransactionHistoryPage is the envelope of the transaction-history
// listing, paginated by oldest_time cursor.
type SumUpTransactionHistoryPage struct {
	Items []SumUpTransaction `json:"items"`
}
