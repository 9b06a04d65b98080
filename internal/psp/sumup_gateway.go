/**
 * @description
 * SumUp fee gateway. SumUp reports the exact fee on the transaction's payout
 * event, so this gateway mostly relays the processor's own numbers; only
 * transactions without payout events fall back to the published percentage
 * schedule. Results flow through the same short-TTL fee cache as Mollie.
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
	"github.com/ticketfabric/psp-fee-service/pkg/sumupclient"
)

// SumUpAPI is the slice of the processor client the gateway needs.
type SumUpAPI interface {
	GetTransaction(ctx context.Context, transactionCode string) (*domain.SumUpTransaction, error)
}

// SumUpGateway implements Gateway for the SumUp provider.
type SumUpGateway struct {
	tenantID uuid.UUID
	api      SumUpAPI
	cache    FeeCache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewSumUpGateway creates a gateway for one tenant.
func NewSumUpGateway(tenantID uuid.UUID, api SumUpAPI, cache FeeCache, cacheTTL time.Duration) *SumUpGateway {
	return &SumUpGateway{
		tenantID: tenantID,
		api:      api,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (g *SumUpGateway) Provider() string {
	return domain.ProviderSumUp
}

// FetchFee resolves the fee for one transaction code.
func (g *SumUpGateway) FetchFee(ctx context.Context, transactionID string) (*domain.FeeResult, error) {
	if g.cache != nil {
		cached, err := g.cache.GetFreshCachedTransactionFee(ctx, g.tenantID, g.Provider(), transactionID, g.cacheTTL)
		if err == nil {
			return cached.Result(), nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			log.Printf("level=warn component=psp msg=\"fee cache lookup failed\" provider=sumup transaction_id=%s error=%v", transactionID, err)
		}
	}

	tx, err := g.api.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sumupclient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionID)
		}
		return nil, err
	}

	result := feecalc.ExtractSumUpFee(tx)

	if g.cache != nil {
		entry := &domain.CachedTransactionFee{
			TenantID:        g.tenantID,
			Provider:        g.Provider(),
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
		if timestamp, err := time.Parse(time.RFC3339, tx.Timestamp); err == nil {
			entry.TransactionDate = timestamp
		}
		if err := g.cache.UpsertCachedTransactionFee(ctx, entry); err != nil {
			log.Printf("level=warn component=psp msg=\"failed to cache fee result\" provider=sumup transaction_id=%s error=%v", transactionID, err)
		}
	}

	return result, nil
}
