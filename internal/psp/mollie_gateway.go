/**
 * @description
 * Mollie fee gateway. Resolves the fee of one processor payment with a strict
 * cost ordering:
 *
 *   1. Transaction fee cache (short freshness window, stale rows evicted).
 *   2. Exact path: settlement rate table of the payment's settlement, or the
 *      tenant's last known rates when the payment has not settled yet.
 *   3. Estimation path: the published standard schedule, when no rates are
 *      obtainable at all.
 *
 * Rate tables whose only matching categories are accounting adjustments
 * produce a zero-fee result rather than an estimate: a guessed rate must never
 * override the processor's own "no fee applies here" signal.
 *
 * @dependencies
 * - internal/domain: Fee models and processor wire schemas.
 * - internal/feecalc: The pure fee computation engine.
 * - pkg/mollieclient: Sentinel errors of the processor client.
 */

package psp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/feecalc"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieclient"
)

// MollieAPI is the slice of the processor client the gateway needs.
type MollieAPI interface {
	GetPayment(ctx context.Context, paymentID string) (*domain.MolliePayment, error)
}

// MollieGateway implements Gateway for the Mollie provider family.
type MollieGateway struct {
	tenantID uuid.UUID
	provider string
	api      MollieAPI
	rates    RateSource
	cache    FeeCache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewMollieGateway creates a gateway for one tenant and provider tag.
func NewMollieGateway(tenantID uuid.UUID, provider string, api MollieAPI, rates RateSource, cache FeeCache, cacheTTL time.Duration) *MollieGateway {
	return &MollieGateway{
		tenantID: tenantID,
		provider: provider,
		api:      api,
		rates:    rates,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (g *MollieGateway) Provider() string {
	return g.provider
}

// FetchFee resolves the fee for one processor payment id.
func (g *MollieGateway) FetchFee(ctx context.Context, transactionID string) (*domain.FeeResult, error) {
	if g.cache != nil {
		cached, err := g.cache.GetFreshCachedTransactionFee(ctx, g.tenantID, g.provider, transactionID, g.cacheTTL)
		if err == nil {
			return cached.Result(), nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			log.Printf("level=warn component=psp msg=\"fee cache lookup failed\" provider=%s transaction_id=%s error=%v", g.provider, transactionID, err)
		}
	}

	payment, err := g.api.GetPayment(ctx, transactionID)
	if err != nil {
		if errors.Is(err, mollieclient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionID)
		}
		return nil, err
	}

	result, err := g.computeFee(ctx, payment)
	if err != nil {
		return nil, err
	}

	g.storeInCache(ctx, transactionID, payment, result)
	return result, nil
}

// computeFee runs the exact-then-estimation fallback over a fetched payment.
func (g *MollieGateway) computeFee(ctx context.Context, payment *domain.MolliePayment) (*domain.FeeResult, error) {
	gross, err := domain.ParseMinorUnits(payment.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("payment %s amount: %w", payment.ID, err)
	}

	result := &domain.FeeResult{
		GrossMinor:   gross,
		Currency:     payment.Amount.Currency,
		SettlementID: payment.SettlementID,
		Status:       feecalc.NormalizeMollieStatus(payment.Status),
	}

	rates, rateOrigin := g.resolveRates(ctx, payment.SettlementID)

	fee, category, err := feecalc.ExactMollieFee(gross, payment.Details.FeeRegion, rates)
	switch {
	case err == nil:
		result.FeeMinor = fee
		result.Details = fmt.Sprintf("%s @ %s rates (fixed %s + %s%%)",
			category, rateOrigin, rates[category].Fixed, rates[category].Percentage)
		result.Source = domain.FeeSourceSettlementRates

	case errors.Is(err, feecalc.ErrNoApplicableRate):
		// Only adjustment lines matched. The processor levies no transaction
		// fee here; estimating one anyway would invent a charge.
		result.FeeMinor = 0
		result.Details = "rate table contains only adjustment categories; no fee applies"
		result.Source = domain.FeeSourceSettlementRates

	case errors.Is(err, feecalc.ErrNoRates):
		estimate, schedule := feecalc.EstimateMollieFee(payment.Method, payment.Details.FeeRegion, gross)
		result.FeeMinor = estimate
		result.Details = "estimated, no settlement rates available; " + schedule
		result.Source = domain.FeeSourceEstimated

	default:
		// A malformed rate table is a data problem, not a reason to bill the
		// estimation schedule silently.
		log.Printf("level=error component=psp msg=\"rate table unusable, estimating\" payment_id=%s error=%v", payment.ID, err)
		estimate, schedule := feecalc.EstimateMollieFee(payment.Method, payment.Details.FeeRegion, gross)
		result.FeeMinor = estimate
		result.Details = "estimated, rate table unusable; " + schedule
		result.Source = domain.FeeSourceEstimated
	}

	if payment.ApplicationFee != nil {
		appFee, err := domain.ParseMinorUnits(payment.ApplicationFee.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("payment %s application fee: %w", payment.ID, err)
		}
		result.FeeMinor += appFee
		result.Details += fmt.Sprintf("; application fee %s", payment.ApplicationFee.Amount.Value)
	}

	result.NetMinor = gross - result.FeeMinor
	return result, nil
}

// resolveRates returns the best available rate table plus a label describing
// its origin. An empty table sends the caller to the estimation path.
func (g *MollieGateway) resolveRates(ctx context.Context, settlementID string) (domain.RateTable, string) {
	if settlementID != "" {
		rates, err := g.rates.RatesForSettlement(ctx, settlementID)
		if err == nil && len(rates) > 0 {
			return rates, "settlement"
		}
		if err != nil {
			log.Printf("level=warn component=psp msg=\"settlement rates unavailable\" settlement_id=%s error=%v", settlementID, err)
		}
	}

	rates, err := g.rates.FallbackRates(ctx)
	if err != nil {
		log.Printf("level=warn component=psp msg=\"last known rates unavailable\" tenant_id=%s error=%v", g.tenantID, err)
		return nil, ""
	}
	return rates, "last known"
}

func (g *MollieGateway) storeInCache(ctx context.Context, transactionID string, payment *domain.MolliePayment, result *domain.FeeResult) {
	if g.cache == nil {
		return
	}
	entry := &domain.CachedTransactionFee{
		TenantID:        g.tenantID,
		Provider:        g.provider,
		TransactionID:   transactionID,
		GrossMinor:      result.GrossMinor,
		FeeMinor:        result.FeeMinor,
		NetMinor:        result.NetMinor,
		Currency:        result.Currency,
		SettlementID:    result.SettlementID,
		Status:          result.Status,
		FeeDetails:      result.Details,
		TransactionDate: g.now(),
	}
	if createdAt, err := time.Parse(time.RFC3339, payment.CreatedAt); err == nil {
		entry.TransactionDate = createdAt
	}
	if err := g.cache.UpsertCachedTransactionFee(ctx, entry); err != nil {
		log.Printf("level=warn component=psp msg=\"failed to cache fee result\" provider=%s transaction_id=%s error=%v", g.provider, transactionID, err)
	}
}
