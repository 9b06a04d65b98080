/**
 * @description
 * OAuth credential lifecycle for the Mollie connection. Access tokens are
 * refreshed proactively inside a safety buffer before expiry so a token cannot
 * die mid-batch, and a failed refresh transitions the tenant to disconnected
 * instead of leaving dead credentials behind.
 *
 * @dependencies
 * - pkg/mollieoauth: The OAuth client and its sentinel errors.
 * - internal/store: Token persistence.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
)

// tokenExpiryBuffer is how long before expiry a token is treated as already
// expired. Wide enough that a batch started now finishes on the same token.
const tokenExpiryBuffer = 5 * time.Minute

// ErrOAuthDisconnected means the token refresh failed and the tenant's OAuth
// connection was torn down; an operator must reconnect.
var ErrOAuthDisconnected = errors.New("oauth connection lost; tenant must reconnect")

// OAuthClient is the OAuth flow surface the service depends on.
type OAuthClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*mollieoauth.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*mollieoauth.Token, error)
	RevokeToken(ctx context.Context, refreshToken string) error
}

// TokenStore is the persistence slice the credential manager needs.
type TokenStore interface {
	UpdateMollieOAuthTokens(ctx context.Context, tenantID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	DisconnectMollieOAuth(ctx context.Context, tenantID uuid.UUID) error
}

// CredentialManager keeps a tenant's Mollie access token valid.
type CredentialManager struct {
	store TokenStore
	oauth OAuthClient
	now   func() time.Time
}

// NewCredentialManager creates a credential manager.
func NewCredentialManager(store TokenStore, oauth OAuthClient) *CredentialManager {
	return &CredentialManager{store: store, oauth: oauth, now: time.Now}
}

// EnsureValidMollieToken returns an access token usable for the whole upcoming
// batch, refreshing (and persisting) it when it expires within the buffer.
// Tenants without an OAuth connection get "" and sync proceeds on the API key
// alone. The passed config is updated in place on refresh.
func (m *CredentialManager) EnsureValidMollieToken(ctx context.Context, cfg *domain.TenantPSPConfig) (string, error) {
	if !cfg.MollieOAuthConnected || cfg.MollieAccessToken == "" {
		return "", nil
	}
	if cfg.MollieTokenExpiresAt != nil && cfg.MollieTokenExpiresAt.After(m.now().Add(tokenExpiryBuffer)) {
		return cfg.MollieAccessToken, nil
	}

	if cfg.MollieRefreshToken == "" {
		return "", m.disconnect(ctx, cfg, fmt.Errorf("token expired and no refresh token on record"))
	}

	log.Printf("level=info component=app msg=\"refreshing oauth access token\" tenant_id=%s", cfg.TenantID)
	token, err := m.oauth.RefreshToken(ctx, cfg.MollieRefreshToken)
	if err != nil {
		// Any refresh failure tears the connection down. The token is inside
		// its expiry buffer, so without a successful refresh the credential is
		// unusable either way; an operator must reconnect.
		return "", m.disconnect(ctx, cfg, err)
	}

	expiresAt := token.ExpiresAt(m.now())
	if err := m.store.UpdateMollieOAuthTokens(ctx, cfg.TenantID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed oauth token: %w", err)
	}

	cfg.MollieAccessToken = token.AccessToken
	cfg.MollieRefreshToken = token.RefreshToken
	cfg.MollieTokenExpiresAt = &expiresAt
	return token.AccessToken, nil
}

func (m *CredentialManager) disconnect(ctx context.Context, cfg *domain.TenantPSPConfig, cause error) error {
	log.Printf("level=warn component=app msg=\"oauth grant dead, disconnecting tenant\" tenant_id=%s error=%v", cfg.TenantID, cause)
	if err := m.store.DisconnectMollieOAuth(ctx, cfg.TenantID); err != nil {
		log.Printf("level=error component=app msg=\"failed to persist oauth disconnect\" tenant_id=%s error=%v", cfg.TenantID, err)
	}
	cfg.MollieOAuthConnected = false
	cfg.MollieAccessToken = ""
	cfg.MollieRefreshToken = ""
	cfg.MollieTokenExpiresAt = nil
	return fmt.Errorf("%w: %v", ErrOAuthDisconnected, cause)
}
