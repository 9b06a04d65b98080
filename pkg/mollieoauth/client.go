/**
 * @description
 * This package implements the OAuth 2.0 authorization-code flow against the
 * Mollie-style processor: building the authorization URL, exchanging the
 * callback code for a token pair, refreshing an expiring access token, and
 * revoking a grant on disconnect.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url, time: Standard Go libraries.
 */
package mollieoauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidGrant means the processor rejected the refresh token or code; the
// grant is dead and the tenant has to reconnect.
var ErrInvalidGrant = errors.New("oauth grant rejected")

const (
	defaultAuthorizeURL = "https://my.mollie.com/oauth2/authorize"
	defaultTokenURL     = "https://api.mollie.com/oauth2/tokens"

	// Scopes required to read payments and settlements on the connected account.
	defaultScopes = "payments.read settlements.read"
)

// Token is the processor's token response. ExpiresIn is seconds from issuance.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts the relative lifetime into an absolute deadline.
func (t *Token) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Client drives the OAuth flow for one app registration (client id/secret pair).
type Client struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       string
	HTTPClient   *http.Client
}

// NewClient creates an OAuth client with the processor's default endpoints.
func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthorizeURL: defaultAuthorizeURL,
		TokenURL:     defaultTokenURL,
		RedirectURI:  redirectURI,
		Scopes:       defaultScopes,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthorizationURL builds the URL the tenant's operator is redirected to,
// carrying the signed state token for callback verification.
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.ClientID)
	params.Set("redirect_uri", c.RedirectURI)
	params.Set("state", state)
	params.Set("scope", c.Scopes)
	params.Set("response_type", "code")
	params.Set("approval_prompt", "auto")
	return c.AuthorizeURL + "?" + params.Encode()
}

// ExchangeCode trades the callback authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURI)
	return c.postToken(ctx, form)
}

// RefreshToken trades a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, form)
}

// RevokeToken invalidates a refresh token at the processor. Revoking an
// already-dead token is not an error.
func (c *Client) RevokeToken(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("token_type_hint", "refresh_token")
	form.Set("token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("revoke failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) postToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidGrant, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}
