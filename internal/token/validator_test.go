// File: internal/token/validator_test.go
package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/config"
	domainErrors "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/token"
)

const testIssuer = "https://idp.example.com/realms/acme"

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *recordingSink) Emit(event models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) securityAlerts() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range s.events {
		if e.EventType == models.AuditSecurityAlert {
			out = append(out, e)
		}
	}
	return out
}

type staticResolver struct {
	keys map[string]*jwks.SigningKey
}

func (r staticResolver) Key(ctx context.Context, kid string) (*jwks.SigningKey, error) {
	if key, ok := r.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", domainErrors.ErrKeyNotFound, kid)
}

type validatorFixture struct {
	validator *token.Validator
	sink      *recordingSink
	key       *rsa.PrivateKey
}

func newFixture(t *testing.T, cfg config.TokenConfig) *validatorFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	realms, err := config.BuildRealmTable(config.ProviderConfig{
		BaseURL: "https://idp.example.com",
		Realm:   "acme",
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	auditor := audit.NewAuditor(audit.Config{Enabled: true}, sink, zap.NewNop())

	resolvers := map[string]token.KeyResolver{
		"acme": staticResolver{keys: map[string]*jwks.SigningKey{
			"key-1": {KeyID: "key-1", KeyType: "RSA", Use: "sig", Algorithm: "RS256", Public: &key.PublicKey},
		}},
	}

	return &validatorFixture{
		validator: token.NewValidator(realms, resolvers, auditor, cfg, zap.NewNop()),
		sink:      sink,
		key:       key,
	}
}

func (f *validatorFixture) sign(t *testing.T, claims jwt.MapClaims, mutate func(*jwt.Token)) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "key-1"
	if mutate != nil {
		mutate(tok)
	}
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-1",
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestValidateSuccess(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	claims := baseClaims()
	claims["preferred_username"] = "jdoe"
	claims["email"] = "jdoe@example.com"
	claims["jti"] = "jti-1"
	claims["realm_access"] = map[string]interface{}{"roles": []interface{}{"admin"}}
	claims["resource_access"] = map[string]interface{}{
		"report-service": map[string]interface{}{"roles": []interface{}{"viewer"}},
	}

	got, err := f.validator.Validate(context.Background(), f.sign(t, claims, nil), "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, testIssuer, got.Issuer)
	assert.Equal(t, "jdoe", got.Username)
	assert.Equal(t, "jdoe@example.com", got.Email)
	assert.Equal(t, "jti-1", got.TokenID)
	assert.Equal(t, []string{"admin"}, got.RealmRoles)
	assert.Equal(t, map[string][]string{"report-service": {"viewer"}}, got.ClientRoles)
	assert.Empty(t, f.sink.securityAlerts())
}

func TestValidateUsernameDefaultsToSubject(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})

	got, err := f.validator.Validate(context.Background(), f.sign(t, baseClaims(), nil), "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.Username)
	assert.Empty(t, got.RealmRoles)
	assert.Empty(t, got.ClientRoles)
}

func TestValidateMalformedStructure(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})

	_, err := f.validator.Validate(context.Background(), "abc.def", "10.0.0.1")

	require.ErrorIs(t, err, domainErrors.ErrMalformedToken)
	assert.True(t, domainErrors.IsStructural(err))
	assert.Contains(t, err.Error(), "3 parts")

	alerts := f.sink.securityAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, token.AlertMalformedToken, alerts[0].Action)
	assert.Equal(t, string(models.SeverityMedium), alerts[0].Metadata["severity"])
	assert.Equal(t, "10.0.0.1", alerts[0].SourceIP)
}

func TestValidateStructuralRejections(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	ctx := context.Background()

	missingSub := baseClaims()
	delete(missingSub, "sub")

	wrongTyp := f.sign(t, baseClaims(), func(tok *jwt.Token) {
		tok.Header["typ"] = "ATJWT"
	})

	cases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not-a-token"},
		{"empty segment", "e30..e30"},
		{"non-json header", "bm90anNvbg.e30.e30"},
		{"missing sub claim", f.sign(t, missingSub, nil)},
		{"wrong typ", wrongTyp},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.validator.Validate(ctx, tc.token, "10.0.0.1")
			assert.True(t, domainErrors.IsStructural(err), "expected structural rejection, got %v", err)
		})
	}

	// One MEDIUM alert per structural rejection, none more.
	assert.Len(t, f.sink.securityAlerts(), len(cases))
}

func TestValidateRejectsDisallowedAlgorithm(t *testing.T) {
	f := newFixture(t, config.TokenConfig{AllowedAlgorithms: []string{"RS256"}})

	// A token signed with HMAC must never be verified against an RSA public
	// key, whatever its header claims.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	tok.Header["kid"] = "key-1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), signed, "10.0.0.1")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
}

func TestValidateExpiredToken(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-2 * time.Hour).Unix()

	_, err := f.validator.Validate(context.Background(), f.sign(t, claims, nil), "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrExpiredToken)
	assert.True(t, domainErrors.IsExpired(err))
}

func TestValidateClockSkewTolerance(t *testing.T) {
	f := newFixture(t, config.TokenConfig{ClockSkew: time.Minute})
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()

	_, err := f.validator.Validate(context.Background(), f.sign(t, claims, nil), "10.0.0.1")

	assert.NoError(t, err)
}

func TestValidateNotYetValid(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	claims := baseClaims()
	claims["nbf"] = time.Now().Add(time.Hour).Unix()

	_, err := f.validator.Validate(context.Background(), f.sign(t, claims, nil), "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrTokenNotYetValid)
}

func TestValidateUnknownIssuer(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	claims := baseClaims()
	claims["iss"] = "https://rogue.example.com/realms/acme"

	_, err := f.validator.Validate(context.Background(), f.sign(t, claims, nil), "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrInvalidIssuer)
}

func TestValidateUnknownKeyID(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})

	signed := f.sign(t, baseClaims(), func(tok *jwt.Token) {
		tok.Header["kid"] = "rotated-away"
	})

	_, err := f.validator.Validate(context.Background(), signed, "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrKeyNotFound)
}

func TestValidateMissingKeyID(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})

	signed := f.sign(t, baseClaims(), func(tok *jwt.Token) {
		delete(tok.Header, "kid")
	})

	_, err := f.validator.Validate(context.Background(), signed, "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrKeyNotFound)
}

func TestValidateTamperedSignature(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})

	signed := f.sign(t, baseClaims(), nil)
	tampered := signed[:len(signed)-2] + "qq"

	_, err := f.validator.Validate(context.Background(), tampered, "10.0.0.1")

	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
}

func TestValidateClaimTypeMismatch(t *testing.T) {
	f := newFixture(t, config.TokenConfig{})
	ctx := context.Background()

	realmAccessString := baseClaims()
	realmAccessString["realm_access"] = "admin"

	rolesNotArray := baseClaims()
	rolesNotArray["realm_access"] = map[string]interface{}{"roles": "admin"}

	mixedRoles := baseClaims()
	mixedRoles["resource_access"] = map[string]interface{}{
		"report-service": map[string]interface{}{"roles": []interface{}{"viewer", 42}},
	}

	badUsername := baseClaims()
	badUsername["preferred_username"] = 12345

	for name, claims := range map[string]jwt.MapClaims{
		"realm_access not an object": realmAccessString,
		"roles not an array":         rolesNotArray,
		"mixed role types":           mixedRoles,
		"numeric username":           badUsername,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.validator.Validate(ctx, f.sign(t, claims, nil), "10.0.0.1")
			assert.ErrorIs(t, err, domainErrors.ErrClaimTypeMismatch)
		})
	}
}

func TestValidateAudienceEnforcedWhenConfigured(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	realms, err := config.BuildRealmTable(config.ProviderConfig{
		BaseURL:  "https://idp.example.com",
		Realm:    "acme",
		Audience: "gateway",
	})
	require.NoError(t, err)

	auditor := audit.NewAuditor(audit.Config{Enabled: true}, &recordingSink{}, zap.NewNop())
	resolvers := map[string]token.KeyResolver{
		"acme": staticResolver{keys: map[string]*jwks.SigningKey{
			"key-1": {KeyID: "key-1", Public: &key.PublicKey},
		}},
	}
	validator := token.NewValidator(realms, resolvers, auditor, config.TokenConfig{}, zap.NewNop())

	sign := func(claims jwt.MapClaims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = "key-1"
		signed, signErr := tok.SignedString(key)
		require.NoError(t, signErr)
		return signed
	}

	good := baseClaims()
	good["aud"] = "gateway"
	_, err = validator.Validate(context.Background(), sign(good), "10.0.0.1")
	assert.NoError(t, err)

	wrong := baseClaims()
	wrong["aud"] = "other-service"
	_, err = validator.Validate(context.Background(), sign(wrong), "10.0.0.1")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAudience)
}
