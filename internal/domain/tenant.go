package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantPSPConfig is the per-tenant processor configuration and OAuth
// credential state. OAuth tokens are mutated only by the credential refresh
// path and by explicit connect/disconnect operations.
type TenantPSPConfig struct {
	TenantID uuid.UUID `json:"tenant_id"`

	MollieEnabled        bool       `json:"mollie_enabled"`
	MollieAPIKey         string     `json:"-"`
	MollieTestMode       bool       `json:"mollie_test_mode"`
	MollieClientID       string     `json:"-"`
	MollieClientSecret   string     `json:"-"`
	MollieAccessToken    string     `json:"-"`
	MollieRefreshToken   string     `json:"-"`
	MollieTokenExpiresAt *time.Time `json:"mollie_token_expires_at,omitempty"`
	MollieOAuthConnected bool       `json:"mollie_oauth_connected"`

	SumUpEnabled bool   `json:"sumup_enabled"`
	SumUpAPIKey  string `json:"-"`

	// LastKnownRates is the denormalized snapshot of the most recently fetched
	// settlement rate table, used for payments that have not settled yet.
	LastKnownRates RateTable `json:"last_known_rates,omitempty"`

	CacheTTLSeconds int       `json:"cache_ttl_seconds"`
	Created         time.Time `json:"created"`
	Modified        time.Time `json:"modified"`
}

// MollieConfigured reports whether the Mollie client can be built at all.
func (c *TenantPSPConfig) MollieConfigured() bool {
	return c != nil && c.MollieEnabled && c.MollieAPIKey != ""
}

// SumUpConfigured reports whether the SumUp client can be built.
func (c *TenantPSPConfig) SumUpConfigured() bool {
	return c != nil && c.SumUpEnabled && c.SumUpAPIKey != ""
}

// CacheTTL returns the tenant's transaction-fee cache freshness window,
// falling back to the given default when unset.
func (c *TenantPSPConfig) CacheTTL(fallback time.Duration) time.Duration {
	if c != nil && c.CacheTTLSeconds > 0 {
		return time.Duration(c.CacheTTLSeconds) * time.Second
	}
	return fallback
}
