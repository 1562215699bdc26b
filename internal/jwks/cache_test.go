// File: internal/jwks/cache_test.go
package jwks_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksDocument(kids map[string]*rsa.PrivateKey) []byte {
	var keys []map[string]string
	for kid, key := range kids {
		keys = append(keys, map[string]string{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		})
	}
	doc, _ := json.Marshal(map[string]interface{}{"keys": keys})
	return doc
}

func TestCacheFetchesOnceWithinTTL(t *testing.T) {
	key := testRSAKey(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-1": key}))
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{TTL: time.Hour}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ks, err := cache.Fetch(ctx)
		require.NoError(t, err)
		assert.Len(t, ks.Keys, 1)
	}

	assert.Equal(t, int32(1), hits.Load())
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	key := testRSAKey(t)
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-1": key}))
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{TTL: time.Millisecond}, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Fetch(ctx)
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)

	ks, err := cache.Fetch(ctx)
	require.NoError(t, err)
	_, ok := ks.Key("key-1")
	assert.True(t, ok)
}

func TestCacheUnavailableWhenNeverFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{TTL: time.Hour}, zap.NewNop())

	_, err := cache.Fetch(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrKeySourceUnavailable)
}

func TestCacheStalenessCeiling(t *testing.T) {
	key := testRSAKey(t)
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-1": key}))
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{
		TTL:          time.Millisecond,
		MaxStaleness: 5 * time.Millisecond,
	}, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Fetch(ctx)
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(20 * time.Millisecond)

	_, err = cache.Fetch(ctx)
	assert.ErrorIs(t, err, domainErrors.ErrKeySourceUnavailable)
}

func TestCacheKeyRefreshesOnRotation(t *testing.T) {
	oldKey := testRSAKey(t)
	newKey := testRSAKey(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-old": oldKey}))
			return
		}
		w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-new": newKey}))
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{TTL: time.Hour}, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Key(ctx, "key-old")
	require.NoError(t, err)

	// Unknown kid forces one refresh; the rotated set carries the new key.
	got, err := cache.Key(ctx, "key-new")
	require.NoError(t, err)
	assert.Equal(t, "key-new", got.KeyID)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCacheKeyNotFoundAfterRetry(t *testing.T) {
	key := testRSAKey(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(jwksDocument(map[string]*rsa.PrivateKey{"key-1": key}))
	}))
	defer srv.Close()

	cache := jwks.NewCache(srv.URL, jwks.Options{TTL: time.Hour}, zap.NewNop())

	_, err := cache.Key(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrKeyNotFound)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCacheSetTTL(t *testing.T) {
	cache := jwks.NewCache("http://127.0.0.1:0", jwks.Options{TTL: time.Hour}, zap.NewNop())

	assert.Equal(t, time.Hour, cache.TTL())
	cache.SetTTL(time.Minute)
	assert.Equal(t, time.Minute, cache.TTL())
	cache.SetTTL(0)
	assert.Equal(t, time.Minute, cache.TTL())
}

func TestParseKeySetSkipsUnusableEntries(t *testing.T) {
	key := testRSAKey(t)
	doc := fmt.Sprintf(`{"keys":[
		{"kty":"RSA","use":"enc","kid":"enc-key","n":"%s","e":"AQAB"},
		{"kty":"RSA","use":"sig","n":"%s","e":"AQAB"},
		{"kty":"RSA","use":"sig","kid":"good","alg":"RS256","n":"%s","e":"AQAB"}
	]}`,
		base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
	)

	ks, err := jwks.ParseKeySet([]byte(doc), time.Now(), time.Hour)
	require.NoError(t, err)
	require.Len(t, ks.Keys, 1)
	assert.Equal(t, "good", ks.Keys[0].KeyID)
}

func TestParseKeySetRejectsEmpty(t *testing.T) {
	_, err := jwks.ParseKeySet([]byte(`{"keys":[]}`), time.Now(), time.Hour)
	assert.Error(t, err)

	_, err = jwks.ParseKeySet([]byte(`not json`), time.Now(), time.Hour)
	assert.Error(t, err)
}
