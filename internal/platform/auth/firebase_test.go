package auth

import (
	"context"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/farmconnect/marketplace/internal/platform/config"
)

type stubIDTokenClient struct {
	plainCalls   int
	revokedCalls int
	deadline     bool
}

func (s *stubIDTokenClient) VerifyIDToken(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	s.plainCalls++
	_, s.deadline = ctx.Deadline()
	return &firebaseauth.Token{UID: "buyer-1"}, nil
}

func (s *stubIDTokenClient) VerifyIDTokenAndCheckRevoked(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	s.revokedCalls++
	_, s.deadline = ctx.Deadline()
	return &firebaseauth.Token{UID: "buyer-1"}, nil
}

func TestFirebaseVerifierRevocationCheck(t *testing.T) {
	for _, checkRevoked := range []bool{false, true} {
		client := &stubIDTokenClient{}
		v := &FirebaseVerifier{client: client, timeout: time.Second, checkRevoked: checkRevoked}

		token, err := v.VerifyIDToken(context.Background(), "id-token")
		if err != nil {
			t.Fatalf("VerifyIDToken: %v", err)
		}
		if token.UID != "buyer-1" {
			t.Fatalf("unexpected uid %q", token.UID)
		}
		if !client.deadline {
			t.Fatalf("expected verification to run under a deadline")
		}
		wantRevoked := 0
		if checkRevoked {
			wantRevoked = 1
		}
		if client.revokedCalls != wantRevoked || client.plainCalls != 1-wantRevoked {
			t.Fatalf("checkRevoked=%v: plain=%d revoked=%d", checkRevoked, client.plainCalls, client.revokedCalls)
		}
	}
}

func TestFirebaseVerifierRequiresClient(t *testing.T) {
	var v *FirebaseVerifier
	if _, err := v.VerifyIDToken(context.Background(), "id-token"); err == nil {
		t.Fatalf("expected error from nil verifier")
	}
	if _, err := NewFirebaseVerifier(context.Background(), nil, false); err == nil {
		t.Fatalf("expected error for nil app")
	}
}

func TestNewFirebaseAppRequiresProject(t *testing.T) {
	if _, err := NewFirebaseApp(context.Background(), config.FirebaseConfig{ProjectID: "  "}); err == nil {
		t.Fatalf("expected error for blank project id")
	}
}
