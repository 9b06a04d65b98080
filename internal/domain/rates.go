package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rate is one fee-category cost formula from a settlement:
// fee = fixed + amount * percentage / 100. Values are kept as the decimal
// strings the processor reports so the persisted table round-trips exactly.
type Rate struct {
	Fixed      string `json:"fixed"`      // e.g. "0.25"
	Percentage string `json:"percentage"` // e.g. "1.2"
}

// RateTable maps a processor fee-category label (e.g. "Credit card - Carte
// Bancaire") to its cost formula.
type RateTable map[string]Rate

// SettlementRateTable is the durable, immutable rate table of one settlement.
// A settlement's historical rates never change once recorded: rows are created
// once and read many times; a concurrent duplicate insert is benign.
type SettlementRateTable struct {
	TenantID     uuid.UUID  `json:"tenant_id"`
	SettlementID string     `json:"settlement_id"`
	PeriodYear   int        `json:"period_year"`
	PeriodMonth  int        `json:"period_month"`
	Rates        RateTable  `json:"rates"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	FetchedAt    time.Time  `json:"fetched_at"`
}
