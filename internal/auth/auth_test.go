package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/grpc/metadata"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

func TestSignAndVerify(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))
	token, err := v.Sign("alice", []string{"analysts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.User != "alice" || !identity.HasGroup("analysts") {
		t.Fatalf("got %+v", identity)
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier([]byte("secret-a"))
	token, _ := v.Sign("alice", nil)
	other := NewVerifier([]byte("secret-b"))
	if _, err := other.Verify(token); svcerr.KindOf(err) != svcerr.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func TestIdentityFromContext_MissingHeader(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	_, err := v.IdentityFromContext(context.Background())
	if svcerr.KindOf(err) != svcerr.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func TestIdentityFromContext_BearerPrefix(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	token, _ := v.Sign("bob", nil)
	md := metadata.Pairs("authorization", "Bearer "+token)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	identity, err := v.IdentityFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.User != "bob" {
		t.Fatalf("got %+v", identity)
	}
}

func TestIdentityFromContext_RedirectTokenCarriesOriginalBearer(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	c := claims{TokenType: RedirectTokenType}
	c.Subject = "carol"
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identity, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.VerifiedClaims["token_type"] != RedirectTokenType {
		t.Fatalf("expected token_type claim preserved, got %+v", identity.VerifiedClaims)
	}
	if identity.VerifiedClaims["redirect_token"] != tok {
		t.Fatalf("expected original bearer forwarded for resolve")
	}
}
