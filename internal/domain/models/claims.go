// File: internal/domain/models/claims.go
package models

import (
	"time"
)

// TokenClaims is the canonical, validated payload of an accepted access token.
// After successful validation Subject, Issuer, ExpiresAt and IssuedAt are always
// present; their absence is a validation failure, never a zero field here.
type TokenClaims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	NotBefore *time.Time

	// Username is preferred_username, defaulted to Subject when absent.
	Username string
	Email    string

	// RealmRoles are realm_access.roles; empty slice when the claim is absent.
	RealmRoles []string
	// ClientRoles maps client id to resource_access.<client>.roles.
	ClientRoles map[string][]string

	// TokenID is the jti claim, empty when absent.
	TokenID string
}
