/**
 * @description
 * Signed OAuth state tokens. The state parameter carried through the
 * authorization redirect is an HMAC-signed JWT binding the flow to a tenant
 * and a nonce, so the callback can verify that the flow was started by this
 * service and has not been replayed across tenants.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token signing and claim validation.
 * - github.com/google/uuid: Nonce and tenant identifiers.
 */
package mollieoauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidState means the callback state token failed signature or claim
// validation and the flow must be aborted.
var ErrInvalidState = errors.New("invalid oauth state token")

// StateClaims are the claims carried in the state JWT.
type StateClaims struct {
	Nonce    string `json:"nonce"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// NewStateToken issues a signed state token for a tenant's authorization flow.
func NewStateToken(secret []byte, tenantID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StateClaims{
		Nonce:    uuid.NewString(),
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "psp-fee-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}
	return signed, nil
}

// ParseStateToken validates a callback state token and returns the tenant it
// was issued for.
func ParseStateToken(secret []byte, state string) (uuid.UUID, error) {
	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer("psp-fee-service"), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !token.Valid {
		return uuid.Nil, ErrInvalidState
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad tenant id", ErrInvalidState)
	}
	return tenantID, nil
}
