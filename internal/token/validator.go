// File: internal/token/validator.go
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/config"
	domainErrors "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
)

// AlertMalformedToken is raised when a token fails structural validation
// before any cryptographic work.
const AlertMalformedToken = "MALFORMED_TOKEN"

// KeyResolver resolves a signing key by id for one realm.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (*jwks.SigningKey, error)
}

// Validator validates bearer tokens: structure first, then signature and
// claims against the realm selected by the token's issuer. It never returns
// raw parser errors; every failure wraps one member of the domain taxonomy.
type Validator struct {
	realms      *config.RealmTable
	resolvers   map[string]KeyResolver
	auditor     *audit.Auditor
	allowedAlgs []string
	clockSkew   time.Duration
	logger      *zap.Logger
}

// NewValidator creates a validator. resolvers is keyed by realm name and
// must cover every realm in the table.
func NewValidator(
	realms *config.RealmTable,
	resolvers map[string]KeyResolver,
	auditor *audit.Auditor,
	cfg config.TokenConfig,
	logger *zap.Logger,
) *Validator {
	algs := cfg.AllowedAlgorithms
	if len(algs) == 0 {
		algs = []string{"RS256"}
	}
	return &Validator{
		realms:      realms,
		resolvers:   resolvers,
		auditor:     auditor,
		allowedAlgs: algs,
		clockSkew:   cfg.ClockSkew,
		logger:      logger.Named("token_validator"),
	}
}

// Validate runs the full validation pipeline and returns canonical claims.
func (v *Validator) Validate(ctx context.Context, tokenString, sourceIP string) (*models.TokenClaims, error) {
	header, payload, err := v.checkStructure(tokenString, sourceIP)
	if err != nil {
		return nil, err
	}

	kid, _ := header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: token header missing kid", domainErrors.ErrKeyNotFound)
	}

	issuer, _ := payload["iss"].(string)
	realm, ok := v.realms.RealmByIssuer(issuer)
	if !ok {
		return nil, fmt.Errorf("%w: unknown issuer %q", domainErrors.ErrInvalidIssuer, issuer)
	}

	resolver, ok := v.resolvers[realm.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no key source for realm %q", domainErrors.ErrInternal, realm.Name)
	}
	key, err := resolver.Key(ctx, kid)
	if err != nil {
		return nil, err
	}

	verified, err := v.verify(tokenString, key, realm)
	if err != nil {
		return nil, err
	}

	return buildClaims(verified)
}

// checkStructure rejects obviously forged input before the key store is ever
// consulted: exactly 3 non-empty base64url segments, JSON object header and
// payload, alg/typ present with typ "JWT", and sub/iss/exp present.
func (v *Validator) checkStructure(tokenString, sourceIP string) (header, payload map[string]interface{}, err error) {
	fail := func(reason string) (map[string]interface{}, map[string]interface{}, error) {
		v.auditor.SecurityAlert(AlertMalformedToken, models.SeverityMedium,
			audit.Entry{SourceIP: sourceIP},
			map[string]interface{}{
				"reason":    reason,
				"component": "token_validator",
			},
		)
		return nil, nil, fmt.Errorf("%w: %s", domainErrors.ErrMalformedToken, reason)
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return fail(fmt.Sprintf("token must consist of 3 parts, got %d", len(parts)))
	}
	for i, part := range parts {
		if part == "" {
			return fail(fmt.Sprintf("token segment %d is empty", i+1))
		}
		if _, decErr := base64.RawURLEncoding.DecodeString(part); decErr != nil {
			return fail(fmt.Sprintf("token segment %d is not valid base64url", i+1))
		}
	}

	headerBytes, _ := base64.RawURLEncoding.DecodeString(parts[0])
	if jsonErr := json.Unmarshal(headerBytes, &header); jsonErr != nil || header == nil {
		return fail("token header is not a JSON object")
	}
	payloadBytes, _ := base64.RawURLEncoding.DecodeString(parts[1])
	if jsonErr := json.Unmarshal(payloadBytes, &payload); jsonErr != nil || payload == nil {
		return fail("token payload is not a JSON object")
	}

	if _, ok := header["alg"].(string); !ok {
		return fail("token header missing alg")
	}
	typ, ok := header["typ"].(string)
	if !ok {
		return fail("token header missing typ")
	}
	if typ != "JWT" {
		return fail(fmt.Sprintf("token typ must be JWT, got %q", typ))
	}

	for _, claim := range []string{"sub", "iss", "exp"} {
		if _, present := payload[claim]; !present {
			return fail(fmt.Sprintf("token payload missing %s claim", claim))
		}
	}

	return header, payload, nil
}

// verify checks the signature against the explicit algorithm allow-list and
// validates the registered time and issuer claims with the configured skew.
func (v *Validator) verify(tokenString string, key *jwks.SigningKey, realm config.RealmConfig) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.allowedAlgs),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithIssuer(realm.Issuer),
		jwt.WithExpirationRequired(),
	}
	if realm.Audience != "" {
		opts = append(opts, jwt.WithAudience(realm.Audience))
	}
	parser := jwt.NewParser(opts...)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key.Public, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid {
		return nil, domainErrors.ErrInvalidSignature
	}
	return claims, nil
}

// mapParseError converts golang-jwt errors into the domain taxonomy so that
// expired, not-yet-valid and invalid stay distinguishable while nothing
// library-specific crosses the validator boundary.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w", domainErrors.ErrExpiredToken)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w", domainErrors.ErrTokenNotYetValid)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w", domainErrors.ErrInvalidIssuer)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w", domainErrors.ErrInvalidAudience)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", domainErrors.ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w", domainErrors.ErrInvalidSignature)
	}
}

// buildClaims is the single decode-and-validate step that turns the verified
// payload into canonical TokenClaims. Optional claims present with the wrong
// shape are rejected rather than accessed defensively downstream.
func buildClaims(claims jwt.MapClaims) (*models.TokenClaims, error) {
	sub, err := requireString(claims, "sub")
	if err != nil {
		return nil, err
	}
	iss, err := requireString(claims, "iss")
	if err != nil {
		return nil, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: exp is not a valid timestamp", domainErrors.ErrClaimTypeMismatch)
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: iat is not a valid timestamp", domainErrors.ErrClaimTypeMismatch)
	}
	if iat == nil {
		return nil, fmt.Errorf("%w: token payload missing iat claim", domainErrors.ErrMalformedToken)
	}

	out := &models.TokenClaims{
		Subject:     sub,
		Issuer:      iss,
		ExpiresAt:   exp.Time,
		IssuedAt:    iat.Time,
		Username:    sub,
		RealmRoles:  []string{},
		ClientRoles: map[string][]string{},
	}

	if nbf, nbfErr := claims.GetNotBefore(); nbfErr == nil && nbf != nil {
		t := nbf.Time
		out.NotBefore = &t
	}
	if aud, audErr := claims.GetAudience(); audErr == nil && len(aud) > 0 {
		out.Audience = aud
	}

	username, err := optionalString(claims, "preferred_username")
	if err != nil {
		return nil, err
	}
	if username != "" {
		out.Username = username
	}
	if out.Email, err = optionalString(claims, "email"); err != nil {
		return nil, err
	}
	if out.TokenID, err = optionalString(claims, "jti"); err != nil {
		return nil, err
	}

	if raw, present := claims["realm_access"]; present {
		roles, rolesErr := rolesFromAccess(raw, "realm_access")
		if rolesErr != nil {
			return nil, rolesErr
		}
		out.RealmRoles = roles
	}

	if raw, present := claims["resource_access"]; present {
		byClient, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: resource_access must be an object", domainErrors.ErrClaimTypeMismatch)
		}
		for clientID, access := range byClient {
			roles, rolesErr := rolesFromAccess(access, "resource_access."+clientID)
			if rolesErr != nil {
				return nil, rolesErr
			}
			out.ClientRoles[clientID] = roles
		}
	}

	return out, nil
}

func requireString(claims jwt.MapClaims, name string) (string, error) {
	raw, present := claims[name]
	if !present {
		return "", fmt.Errorf("%w: token payload missing %s claim", domainErrors.ErrMalformedToken, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", domainErrors.ErrClaimTypeMismatch, name)
	}
	return s, nil
}

func optionalString(claims jwt.MapClaims, name string) (string, error) {
	raw, present := claims[name]
	if !present {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domainErrors.ErrClaimTypeMismatch, name)
	}
	return s, nil
}

func rolesFromAccess(raw interface{}, claimPath string) ([]string, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", domainErrors.ErrClaimTypeMismatch, claimPath)
	}
	rawRoles, present := obj["roles"]
	if !present {
		return []string{}, nil
	}
	list, ok := rawRoles.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s.roles must be an array of strings", domainErrors.ErrClaimTypeMismatch, claimPath)
	}
	roles := make([]string, 0, len(list))
	for _, item := range list {
		role, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.roles must be an array of strings", domainErrors.ErrClaimTypeMismatch, claimPath)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
