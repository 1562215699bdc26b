// File: internal/oauth/client.go
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/config"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

// Credentials identifies one service account. Empty ClientID/ClientSecret
// fall back to the realm's configured defaults.
type Credentials struct {
	Realm        string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// cachedToken is replaced wholesale on refresh or reacquisition.
type cachedToken struct {
	token            *oauth2.Token
	refreshExpiresAt time.Time
}

// Client acquires machine-to-machine tokens through the client-credentials
// grant for automated workflows. Tokens are cached per (realm, clientId) and
// reused while they stay valid beyond a safety buffer; when a live refresh
// token exists, the refresh grant is tried first and a failed refresh falls
// back to full re-authentication.
type Client struct {
	realms         *config.RealmTable
	httpClient     *http.Client
	requestTimeout time.Duration
	expiryBuffer   time.Duration
	logger         *zap.Logger

	mu    sync.Mutex
	cache map[string]*cachedToken
}

// NewClient creates a service-credential client.
func NewClient(realms *config.RealmTable, cfg config.ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	buffer := cfg.ExpiryBuffer
	if buffer <= 0 {
		buffer = 30 * time.Second
	}
	return &Client{
		realms:         realms,
		httpClient:     &http.Client{Timeout: timeout},
		requestTimeout: timeout,
		expiryBuffer:   buffer,
		logger:         logger.Named("service_credentials"),
		cache:          make(map[string]*cachedToken),
	}
}

func cacheKey(realm, clientID string) string {
	return realm + "/" + clientID
}

// Token returns a valid access token for the given credentials, reusing the
// cache when possible.
func (c *Client) Token(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	realm, ok := c.realms.Realm(creds.Realm)
	if !ok {
		return nil, fmt.Errorf("unknown realm %q", creds.Realm)
	}
	if creds.ClientID == "" {
		creds.ClientID = realm.ClientID
		creds.ClientSecret = realm.ClientSecret
	}
	if creds.ClientID == "" {
		return nil, fmt.Errorf("no client credentials configured for realm %q", creds.Realm)
	}

	key := cacheKey(creds.Realm, creds.ClientID)
	now := time.Now()

	c.mu.Lock()
	cached := c.cache[key]
	var refreshToken string
	if cached != nil {
		if cached.token.Expiry.After(now.Add(c.expiryBuffer)) {
			tok := *cached.token
			c.mu.Unlock()
			return &tok, nil
		}
		if cached.token.RefreshToken != "" && (cached.refreshExpiresAt.IsZero() || cached.refreshExpiresAt.After(now)) {
			refreshToken = cached.token.RefreshToken
		}
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	if refreshToken != "" {
		tok, err := c.refreshGrant(ctx, realm, creds, refreshToken)
		if err == nil {
			metrics.ServiceTokenRequestsTotal.WithLabelValues("refresh_token", "success").Inc()
			c.store(key, tok)
			return tok, nil
		}
		metrics.ServiceTokenRequestsTotal.WithLabelValues("refresh_token", "failure").Inc()
		c.logger.Warn("Refresh grant failed, falling back to client credentials",
			zap.String("realm", creds.Realm),
			zap.String("client_id", creds.ClientID),
			zap.Error(err),
		)
	}

	tok, err := c.clientCredentialsGrant(ctx, realm, creds)
	if err != nil {
		metrics.ServiceTokenRequestsTotal.WithLabelValues("client_credentials", "failure").Inc()
		return nil, fmt.Errorf("client credentials grant for %s/%s: %w", creds.Realm, creds.ClientID, err)
	}
	metrics.ServiceTokenRequestsTotal.WithLabelValues("client_credentials", "success").Inc()
	c.store(key, tok)
	return tok, nil
}

func (c *Client) refreshGrant(ctx context.Context, realm config.RealmConfig, creds Credentials, refreshToken string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: realm.TokenEndpoint()},
		Scopes:       creds.Scopes,
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (c *Client) clientCredentialsGrant(ctx context.Context, realm config.RealmConfig, creds Credentials) (*oauth2.Token, error) {
	conf := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     realm.TokenEndpoint(),
		Scopes:       creds.Scopes,
	}
	return conf.Token(ctx)
}

func (c *Client) store(key string, tok *oauth2.Token) {
	entry := &cachedToken{token: tok}
	// Keycloak reports the refresh token lifetime alongside the access token.
	if raw, ok := tok.Extra("refresh_expires_in").(float64); ok && raw > 0 {
		entry.refreshExpiresAt = time.Now().Add(time.Duration(raw) * time.Second)
	}
	c.mu.Lock()
	c.cache[key] = entry
	c.mu.Unlock()
}

// ClearToken drops the cached token for one (realm, clientId), e.g. after a
// credential rotation.
func (c *Client) ClearToken(realm, clientID string) {
	c.mu.Lock()
	delete(c.cache, cacheKey(realm, clientID))
	c.mu.Unlock()
}

// ClearAllTokens drops every cached token.
func (c *Client) ClearAllTokens() {
	c.mu.Lock()
	c.cache = make(map[string]*cachedToken)
	c.mu.Unlock()
}
