// File: internal/identity/extractor.go
package identity

import (
	"strings"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
)

// DefaultServiceAccountPrefix is Keycloak's naming convention for client
// service accounts. The predicate is configurable because other providers
// name machine identities differently.
const DefaultServiceAccountPrefix = "service-account-"

// Extractor derives the trusted UserContext from validated token claims.
// It is a pure mapping: no I/O, and it cannot fail because its input has
// already passed validation.
type Extractor struct {
	serviceAccountPrefix string
}

// NewExtractor creates an extractor. An empty prefix falls back to the
// Keycloak convention.
func NewExtractor(serviceAccountPrefix string) *Extractor {
	if serviceAccountPrefix == "" {
		serviceAccountPrefix = DefaultServiceAccountPrefix
	}
	return &Extractor{serviceAccountPrefix: serviceAccountPrefix}
}

// Extract maps claims into a canonical identity record.
func (e *Extractor) Extract(claims *models.TokenClaims) *models.UserContext {
	roles := make([]string, len(claims.RealmRoles))
	copy(roles, claims.RealmRoles)

	clientRoles := make(map[string][]string, len(claims.ClientRoles))
	for clientID, cr := range claims.ClientRoles {
		list := make([]string, len(cr))
		copy(list, cr)
		clientRoles[clientID] = list
	}

	return &models.UserContext{
		UserID:           claims.Subject,
		Username:         claims.Username,
		Email:            claims.Email,
		Roles:            roles,
		ClientRoles:      clientRoles,
		Realm:            RealmFromIssuer(claims.Issuer),
		IsServiceAccount: e.isServiceAccount(claims),
		TokenID:          claims.TokenID,
		ExpiresAt:        claims.ExpiresAt,
	}
}

func (e *Extractor) isServiceAccount(claims *models.TokenClaims) bool {
	return strings.HasPrefix(claims.Username, e.serviceAccountPrefix) ||
		strings.HasPrefix(claims.Subject, e.serviceAccountPrefix)
}

// RealmFromIssuer returns the path segment following "/realms/" in the
// issuer URL, which names the realm for any issuer of the form
// {baseUrl}/realms/{realm}. An issuer without that segment yields "".
func RealmFromIssuer(issuer string) string {
	const marker = "/realms/"
	idx := strings.Index(issuer, marker)
	if idx < 0 {
		return ""
	}
	rest := issuer[idx+len(marker):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
