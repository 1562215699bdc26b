// File: internal/config/realms.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// RealmConfig describes one identity-provider realm. Issuer defaults to
// {base_url}/realms/{name} when not set explicitly.
type RealmConfig struct {
	Name         string `mapstructure:"name" json:"name"`
	BaseURL      string `mapstructure:"base_url" json:"url"`
	Issuer       string `mapstructure:"issuer" json:"issuer,omitempty"`
	Audience     string `mapstructure:"audience" json:"audience,omitempty"`
	ClientID     string `mapstructure:"client_id" json:"client_id,omitempty"`
	ClientSecret string `mapstructure:"client_secret" json:"client_secret,omitempty"`
}

// JWKSURI returns the realm's certs endpoint.
func (r RealmConfig) JWKSURI() string {
	return realmEndpoint(r.BaseURL, r.Name, "certs")
}

// TokenEndpoint returns the realm's token endpoint.
func (r RealmConfig) TokenEndpoint() string {
	return realmEndpoint(r.BaseURL, r.Name, "token")
}

func realmEndpoint(baseURL, realm, suffix string) string {
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/realms/%s/protocol/openid_connect/%s", base, realm, suffix)
}

// RealmTable is the normalized realm lookup table. It is built once at
// startup (or reload) and read-only afterwards; rebuilding from unchanged
// input yields an identical table.
type RealmTable struct {
	byName      map[string]RealmConfig
	byIssuer    map[string]RealmConfig
	defaultName string
}

// BuildRealmTable normalizes the base realm and any extra realms into one
// table keyed by name and by issuer.
func BuildRealmTable(p ProviderConfig) (*RealmTable, error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("provider base_url is required")
	}
	if p.Realm == "" {
		return nil, fmt.Errorf("provider realm is required")
	}

	base := RealmConfig{
		Name:         p.Realm,
		BaseURL:      p.BaseURL,
		Issuer:       p.Issuer,
		Audience:     p.Audience,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
	}

	t := &RealmTable{
		byName:      make(map[string]RealmConfig),
		byIssuer:    make(map[string]RealmConfig),
		defaultName: base.Name,
	}

	for _, rc := range append([]RealmConfig{base}, p.Realms...) {
		if rc.Name == "" {
			return nil, fmt.Errorf("realm entry without a name")
		}
		if rc.BaseURL == "" {
			rc.BaseURL = p.BaseURL
		}
		if rc.Issuer == "" {
			rc.Issuer = strings.TrimRight(rc.BaseURL, "/") + "/realms/" + rc.Name
		}
		if _, dup := t.byName[rc.Name]; dup {
			return nil, fmt.Errorf("duplicate realm %q", rc.Name)
		}
		t.byName[rc.Name] = rc
		t.byIssuer[rc.Issuer] = rc
	}

	return t, nil
}

// Default returns the base realm.
func (t *RealmTable) Default() RealmConfig {
	return t.byName[t.defaultName]
}

// Realm looks a realm up by name.
func (t *RealmTable) Realm(name string) (RealmConfig, bool) {
	rc, ok := t.byName[name]
	return rc, ok
}

// RealmByIssuer looks a realm up by its issuer URL.
func (t *RealmTable) RealmByIssuer(issuer string) (RealmConfig, bool) {
	rc, ok := t.byIssuer[issuer]
	return rc, ok
}

// Names returns all configured realm names.
func (t *RealmTable) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	return names
}

// realmsFromEnv resolves extra realms from the environment. Two input forms
// are supported; the structured AUTH_REALMS json list takes precedence over
// indexed REALM_<n>_* variables when both are set.
func realmsFromEnv() ([]RealmConfig, error) {
	if raw := os.Getenv("AUTH_REALMS"); raw != "" {
		var realms []RealmConfig
		if err := json.Unmarshal([]byte(raw), &realms); err != nil {
			return nil, fmt.Errorf("failed to parse AUTH_REALMS: %w", err)
		}
		return realms, nil
	}

	var realms []RealmConfig
	for i := 1; ; i++ {
		name := os.Getenv(fmt.Sprintf("REALM_%d_NAME", i))
		if name == "" {
			break
		}
		realms = append(realms, RealmConfig{
			Name:     name,
			BaseURL:  os.Getenv(fmt.Sprintf("REALM_%d_URL", i)),
			Issuer:   os.Getenv(fmt.Sprintf("REALM_%d_ISSUER", i)),
			Audience: os.Getenv(fmt.Sprintf("REALM_%d_AUDIENCE", i)),
		})
	}
	return realms, nil
}
