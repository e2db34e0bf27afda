package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	mu       sync.Mutex
	requests int
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "key1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheCachesKeys(t *testing.T) {
	f := newJWKSFixture(t)
	cache := NewJWKSCache(f.server.URL, WithJWKSLogger(zap.NewNop()))

	for range 2 {
		got, err := cache.Key(context.Background(), "key1")
		if err != nil {
			t.Fatalf("cache.Key: %v", err)
		}
		if _, ok := got.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", got)
		}
	}
	if f.requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", f.requests)
	}
}

func TestJWKSCacheRefreshesAfterExpiry(t *testing.T) {
	f := newJWKSFixture(t)
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	cache := NewJWKSCache(f.server.URL, WithJWKSLogger(zap.NewNop()), WithJWKSClock(func() time.Time { return now }))

	if _, err := cache.Key(context.Background(), "key1"); err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(context.Background(), "key1"); err != nil {
		t.Fatalf("cache.Key after expiry: %v", err)
	}
	if f.requests != 2 {
		t.Fatalf("expected refetch after max-age, got %d fetches", f.requests)
	}
}

func TestRequireOIDC(t *testing.T) {
	f := newJWKSFixture(t)
	validator := NewOIDCValidator(NewJWKSCache(f.server.URL), SchedulerPolicy{
		Audiences: []string{"https://api.example.com"},
		Issuers:   []string{"https://accounts.google.com"},
	}, nil)
	middleware := validator.RequireOIDC()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		status int
	}{
		{"valid", jwt.MapClaims{"aud": []string{"https://api.example.com"}, "iss": "https://accounts.google.com", "sub": "sa", "email": "scheduler@example.iam.gserviceaccount.com", "exp": exp}, http.StatusNoContent},
		{"wrong audience", jwt.MapClaims{"aud": "https://other", "iss": "https://accounts.google.com", "exp": exp}, http.StatusUnauthorized},
		{"wrong issuer", jwt.MapClaims{"aud": "https://api.example.com", "iss": "https://evil", "exp": exp}, http.StatusUnauthorized},
		{"expired", jwt.MapClaims{"aud": "https://api.example.com", "iss": "https://accounts.google.com", "exp": time.Now().Add(-time.Hour).Unix()}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Subject != "sa" {
					t.Fatalf("expected service identity, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/sweep", nil)
			req.Header.Set("Authorization", "Bearer "+f.sign(t, tc.claims))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRequireOIDCWithoutAudienceIsUnavailable(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0"), SchedulerPolicy{}, zap.NewNop())
	handler := validator.RequireOIDC()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestVerifyRestrictsServiceAccounts(t *testing.T) {
	f := newJWKSFixture(t)
	validator := NewOIDCValidator(NewJWKSCache(f.server.URL), SchedulerPolicy{
		Audiences:       []string{"https://api.example.com"},
		ServiceAccounts: []string{"scheduler@farmconnect.iam.gserviceaccount.com"},
	}, nil)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		email   string
		emailOK bool
		wantErr bool
	}{
		{"allowed account", "scheduler@farmconnect.iam.gserviceaccount.com", true, false},
		{"unverified email", "scheduler@farmconnect.iam.gserviceaccount.com", false, true},
		{"other account", "intruder@elsewhere.iam.gserviceaccount.com", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := f.sign(t, jwt.MapClaims{
				"aud":            "https://api.example.com",
				"iss":            "https://accounts.google.com",
				"sub":            "1234567890",
				"email":          tc.email,
				"email_verified": tc.emailOK,
				"exp":            exp,
			})
			identity, err := validator.Verify(context.Background(), raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected rejection, got %+v", identity)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if identity.Email != tc.email || identity.Subject != "1234567890" {
				t.Fatalf("unexpected identity %+v", identity)
			}
		})
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"public, max-age=3600, must-revalidate": time.Hour,
		"Max-Age=60":                            time.Minute,
		"no-cache":                              0,
		"max-age=abc":                           0,
	}
	for header, want := range cases {
		if got := maxAge(header); got != want {
			t.Fatalf("maxAge(%q) = %s, want %s", header, got, want)
		}
	}
}
