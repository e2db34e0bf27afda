package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireAuthAllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID: "farmer-1",
		Claims: map[string]interface{}{
			"role":  []interface{}{"Farmer", "farmer"},
			"name":  "Green Acres",
			"email": "farm@example.com",
		},
	}}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireAuth(RoleFarmer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "farmer-1" || identity.DisplayName != "Green Acres" || identity.Email != "farm@example.com" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if len(identity.Roles) != 1 || !identity.HasRole(RoleFarmer) {
			t.Fatalf("expected deduplicated farmer role, got %v", identity.Roles)
		}
		if ActorID(r.Context()) != "farmer-1" {
			t.Fatalf("expected actor id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, got status %d", rr.Code)
	}
	if verifier.received != "token-123" {
		t.Fatalf("unexpected token forwarded: %s", verifier.received)
	}
}

func TestRequireAuthWithoutRoleClaimWhenNoRolesRequired(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{token: &firebaseauth.Token{UID: "buyer-1", Claims: map[string]interface{}{}}})
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier *stubTokenVerifier
		roles    []string
		status   int
		code     string
	}{
		{"missing header", "", &stubTokenVerifier{}, nil, http.StatusUnauthorized, "unauthenticated"},
		{"wrong scheme", "Basic abc", &stubTokenVerifier{}, nil, http.StatusUnauthorized, "unauthenticated"},
		{"expired", "Bearer abc", &stubTokenVerifier{err: ErrTokenExpired}, nil, http.StatusUnauthorized, "token_expired"},
		{"invalid", "Bearer abc", &stubTokenVerifier{err: errors.New("bad signature")}, nil, http.StatusUnauthorized, "invalid_token"},
		{
			"wrong role", "Bearer abc",
			&stubTokenVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]interface{}{"role": "buyer"}}},
			[]string{RoleAdmin}, http.StatusForbidden, "insufficient_role",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireAuth(tc.roles...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := decodeError(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}
