/**
 * @description
 * Settlement rate table sourcing for the exact fee path. Settlement rates are
 * immutable history: once a settlement is paid out its cost lines never change,
 * so tables are fetched from the processor exactly once, persisted permanently,
 * and every later sync reads the stored copy. Each successful fetch also
 * refreshes the tenant's last-known-rates snapshot used for unsettled payments.
 *
 * @dependencies
 * - internal/domain: Rate table models and processor wire schemas.
 * - internal/store: Sentinel errors of the persistence layer.
 */

package psp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/feecalc"
	"github.com/ticketfabric/psp-fee-service/internal/store"
)

// SettlementAPI is the slice of the processor client the rate source needs.
type SettlementAPI interface {
	GetSettlement(ctx context.Context, settlementID string) (*domain.MollieSettlement, error)
}

// RateStore is the persistence surface for settlement rate tables and the
// tenant's last-known snapshot.
type RateStore interface {
	GetSettlementRateTable(ctx context.Context, tenantID uuid.UUID, settlementID string) (*domain.SettlementRateTable, error)
	CreateSettlementRateTable(ctx context.Context, table *domain.SettlementRateTable) error
	UpdateLastKnownRates(ctx context.Context, tenantID uuid.UUID, rates domain.RateTable) error
	LastKnownRates(ctx context.Context, tenantID uuid.UUID) (domain.RateTable, error)
}

// SettlementRateSource implements RateSource backed by the processor's
// settlement API and the permanent rate table store.
type SettlementRateSource struct {
	tenantID uuid.UUID
	api      SettlementAPI
	store    RateStore
}

// NewSettlementRateSource creates a rate source scoped to one tenant.
func NewSettlementRateSource(tenantID uuid.UUID, api SettlementAPI, rateStore RateStore) *SettlementRateSource {
	return &SettlementRateSource{tenantID: tenantID, api: api, store: rateStore}
}

// RatesForSettlement returns the rate table of a settlement, stored copy first.
// A miss triggers one processor fetch; the parsed table is persisted with
// create-once semantics (a concurrent duplicate insert is benign) and the
// tenant's last-known snapshot is refreshed.
func (s *SettlementRateSource) RatesForSettlement(ctx context.Context, settlementID string) (domain.RateTable, error) {
	stored, err := s.store.GetSettlementRateTable(ctx, s.tenantID, settlementID)
	if err == nil {
		return stored.Rates, nil
	}
	if !errors.Is(err, store.ErrRateTableNotFound) {
		return nil, err
	}

	settlement, err := s.api.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("fetch settlement %s: %w", settlementID, err)
	}

	table, err := ParseSettlementRates(settlement)
	if err != nil {
		return nil, fmt.Errorf("settlement %s: %w", settlementID, err)
	}
	table.TenantID = s.tenantID

	if err := s.store.CreateSettlementRateTable(ctx, table); err != nil {
		// The table was parsed fine; failing to persist it only costs a refetch
		// next sync.
		log.Printf("level=warn component=psp msg=\"failed to persist settlement rates\" settlement_id=%s error=%v", settlementID, err)
	}
	if err := s.store.UpdateLastKnownRates(ctx, s.tenantID, table.Rates); err != nil {
		log.Printf("level=warn component=psp msg=\"failed to update last known rates\" tenant_id=%s error=%v", s.tenantID, err)
	}

	return table.Rates, nil
}

// FallbackRates returns the tenant's last-known rate snapshot.
func (s *SettlementRateSource) FallbackRates(ctx context.Context) (domain.RateTable, error) {
	rates, err := s.store.LastKnownRates(ctx, s.tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantConfigNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rates, nil
}

// ParseSettlementRates extracts the fee-category cost formulas from a
// settlement resource. Cost lines from every period are merged, the most
// recent period wins on duplicate category labels, and a settlement whose
// periods yield zero usable categories is an error rather than an empty table.
func ParseSettlementRates(settlement *domain.MollieSettlement) (*domain.SettlementRateTable, error) {
	rates := make(domain.RateTable)
	var latestYear, latestMonth int

	years := make([]string, 0, len(settlement.Periods))
	for yearKey := range settlement.Periods {
		years = append(years, yearKey)
	}
	sort.Strings(years)

	for _, yearKey := range years {
		year, err := strconv.Atoi(yearKey)
		if err != nil {
			return nil, fmt.Errorf("malformed period year %q", yearKey)
		}
		months := make([]string, 0, len(settlement.Periods[yearKey]))
		for monthKey := range settlement.Periods[yearKey] {
			months = append(months, monthKey)
		}
		sort.Slice(months, func(i, j int) bool {
			a, _ := strconv.Atoi(months[i])
			b, _ := strconv.Atoi(months[j])
			return a < b
		})

		for _, monthKey := range months {
			month, err := strconv.Atoi(monthKey)
			if err != nil {
				return nil, fmt.Errorf("malformed period month %q", monthKey)
			}
			if year > latestYear || (year == latestYear && month > latestMonth) {
				latestYear, latestMonth = year, month
			}
			for _, cost := range settlement.Periods[yearKey][monthKey].Costs {
				if cost.Description == "" {
					continue
				}
				rates[cost.Description] = domain.Rate{
					Fixed:      cost.Rate.Fixed.Value,
					Percentage: cost.Rate.Percentage,
				}
			}
		}
	}

	if len(rates) == 0 {
		return nil, feecalc.ErrNoRates
	}

	table := &domain.SettlementRateTable{
		SettlementID: settlement.ID,
		PeriodYear:   latestYear,
		PeriodMonth:  latestMonth,
		Rates:        rates,
	}
	if settlement.SettledAt != "" {
		if settledAt, err := time.Parse(time.RFC3339, settlement.SettledAt); err == nil {
			table.SettledAt = &settledAt
		}
	}
	return table, nil
}
