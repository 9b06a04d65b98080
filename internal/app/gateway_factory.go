/**
 * @description
 * Gateway construction. The factory turns a tenant's processor configuration
 * into ready-to-use fee gateways, wiring the processor clients, the settlement
 * rate source and the shared transaction fee cache together.
 */

package app

import (
	"fmt"
	"time"

	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/psp"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieclient"
	"github.com/ticketfabric/psp-fee-service/pkg/sumupclient"
)

// GatewayFactory builds a fee gateway for one tenant/provider pair.
// accessToken is the tenant's current OAuth token, "" when not connected.
type GatewayFactory interface {
	GatewayFor(cfg *domain.TenantPSPConfig, provider, accessToken string) (psp.Gateway, error)
}

// ClientGatewayFactory is the production factory backed by the real processor
// clients and the Postgres-backed cache and rate store.
type ClientGatewayFactory struct {
	repo            store.Repository
	mollieBaseURL   string
	sumupBaseURL    string
	maxRetries      int
	backoffFactor   float64
	defaultCacheTTL time.Duration
}

// NewClientGatewayFactory creates the production gateway factory.
func NewClientGatewayFactory(repo store.Repository, mollieBaseURL, sumupBaseURL string, maxRetries int, backoffFactor float64, defaultCacheTTL time.Duration) *ClientGatewayFactory {
	return &ClientGatewayFactory{
		repo:            repo,
		mollieBaseURL:   mollieBaseURL,
		sumupBaseURL:    sumupBaseURL,
		maxRetries:      maxRetries,
		backoffFactor:   backoffFactor,
		defaultCacheTTL: defaultCacheTTL,
	}
}

func (f *ClientGatewayFactory) GatewayFor(cfg *domain.TenantPSPConfig, provider, accessToken string) (psp.Gateway, error) {
	cacheTTL := cfg.CacheTTL(f.defaultCacheTTL)

	switch {
	case domain.IsMollieProvider(provider):
		if !cfg.MollieConfigured() {
			return nil, fmt.Errorf("%w: %s", psp.ErrNotConfigured, provider)
		}
		client := mollieclient.NewClient(f.mollieBaseURL, cfg.MollieAPIKey, accessToken)
		f.applyRetryPolicy(&client.MaxRetries, &client.BackoffFactor)
		rates := psp.NewSettlementRateSource(cfg.TenantID, client, f.repo)
		return psp.NewMollieGateway(cfg.TenantID, provider, client, rates, f.repo, cacheTTL), nil

	case provider == domain.ProviderSumUp:
		if !cfg.SumUpConfigured() {
			return nil, fmt.Errorf("%w: %s", psp.ErrNotConfigured, provider)
		}
		client := sumupclient.NewClient(f.sumupBaseURL, cfg.SumUpAPIKey)
		f.applyRetryPolicy(&client.MaxRetries, &client.BackoffFactor)
		return psp.NewSumUpGateway(cfg.TenantID, client, f.repo, cacheTTL), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %s", psp.ErrNotConfigured, provider)
	}
}

func (f *ClientGatewayFactory) applyRetryPolicy(maxRetries *int, backoffFactor *float64) {
	if f.maxRetries > 0 {
		*maxRetries = f.maxRetries
	}
	if f.backoffFactor > 0 {
		*backoffFactor = f.backoffFactor
	}
}
