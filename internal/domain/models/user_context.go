// File: internal/domain/models/user_context.go
package models

import "time"

// UserContext is the trusted identity derived from validated token claims.
// It is created once per request, attached to the request scope and never
// mutated afterwards. Downstream services base their authorization decisions
// on it; this package does not define those rules.
type UserContext struct {
	UserID           string              `json:"user_id"`
	Username         string              `json:"username"`
	Email            string              `json:"email,omitempty"`
	Roles            []string            `json:"roles"`
	ClientRoles      map[string][]string `json:"client_roles,omitempty"`
	Realm            string              `json:"realm"`
	IsServiceAccount bool                `json:"is_service_account"`
	TokenID          string              `json:"token_id,omitempty"`
	ExpiresAt        time.Time           `json:"expires_at"`
}

// HasRole reports whether the flattened realm roles contain the given role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasClientRole reports whether the given client granted the given role.
func (u *UserContext) HasClientRole(clientID, role string) bool {
	for _, r := range u.ClientRoles[clientID] {
		if r == role {
			return true
		}
	}
	return false
}
