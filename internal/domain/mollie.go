/**
 * @description
 * Typed wire schemas for the Mollie-style processor API (v2). The fee engine
 * operates on these typed variants rather than raw JSON maps so the fallback
 * logic stays exhaustive and testable.
 */

package domain

// MollieAmount is Mollie's {value, currency} money object. Value is a decimal
// string ("20.00").
type MollieAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// MolliePaymentDetails carries the card attributes relevant to fee-category
// selection.
type MolliePaymentDetails struct {
	FeeRegion string `json:"feeRegion,omitempty"`
	CardLabel string `json:"cardLabel,omitempty"`
}

// MolliePayment is the payment resource returned by GET /payments/{id}.
type MolliePayment struct {
	Resource       string               `json:"resource"`
	ID             string               `json:"id"`
	Status         string               `json:"status"`
	Method         string               `json:"method"`
	Amount         MollieAmount         `json:"amount"`
	SettlementID   string               `json:"settlementId,omitempty"`
	ApplicationFee *MollieAmountWrapper `json:"applicationFee,omitempty"`
	Details        MolliePaymentDetails `json:"details"`
	CreatedAt      string               `json:"createdAt"`
}

// MollieAmountWrapper wraps an amount with an optional description, used for
// application fees on connected accounts.
type MollieAmountWrapper struct {
	Amount      MollieAmount `json:"amount"`
	Description string       `json:"description,omitempty"`
}

// MollieCostRate is the {fixed, percentage} formula on a settlement cost line.
type MollieCostRate struct {
	Fixed      MollieAmount `json:"fixed"`
	Percentage string       `json:"percentage"`
}

// MollieCostLine is one cost entry in a settlement period.
type MollieCostLine struct {
	Description string         `json:"description"`
	Count       int            `json:"count"`
	AmountNet   MollieAmount   `json:"amountNet"`
	AmountGross MollieAmount   `json:"amountGross"`
	Rate        MollieCostRate `json:"rate"`
}

// MollieSettlementPeriod groups the revenue and cost lines of one calendar
// month inside a settlement.
type MollieSettlementPeriod struct {
	Costs []MollieCostLine `json:"costs"`
}

// MollieSettlement is the settlement resource returned by GET /settlements/{id}.
// Periods is keyed year -> month ("2025" -> "4").
type MollieSettlement struct {
	Resource  string                                       `json:"resource"`
	ID        string                                       `json:"id"`
	Reference string                                       `json:"reference"`
	Status    string                                       `json:"status"`
	SettledAt string                                       `json:"settledAt,omitempty"`
	Periods   map[string]map[string]MollieSettlementPeriod `json:"periods"`
}

// MollieBalanceTransactionContext links a balance transaction back to its payment.
type MollieBalanceTransactionContext struct {
	PaymentID          string `json:"paymentId,omitempty"`
	PaymentDescription string `json:"paymentDescription,omitempty"`
}

// MollieBalanceTransaction is one entry of the balance-transactions report.
// Deductions is the processor-reported net deduction (negative) and already
// reflects every surcharge applied to the payment.
type MollieBalanceTransaction struct {
	ID            string                          `json:"id"`
	Type          string                          `json:"type"`
	Context       MollieBalanceTransactionContext `json:"context"`
	InitialAmount MollieAmount                    `json:"initialAmount"`
	ResultAmount  MollieAmount                    `json:"resultAmount"`
	Deductions    *MollieAmount                   `json:"deductions,omitempty"`
}

// MollieBalanceTransactionPage is the paginated list envelope for balance
// transactions; Links.Next.Href carries the cursor for the following page.
type MollieBalanceTransactionPage struct {
	Count    int `json:"count"`
	Embedded struct {
		BalanceTransactions []MollieBalanceTransaction `json:"balance_transactions"`
	} `json:"_embedded"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}
