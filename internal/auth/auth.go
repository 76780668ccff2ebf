// Package auth extracts and verifies the caller's identity from Flight
// RPC metadata: a bearer-token HS256 JWT, per the external interface
// contract's Authentication section.
package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/grpc/metadata"

	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// RedirectTokenType is the JWT claim value that routes authorization to
// the remote resolve endpoint instead of the static policy store.
const RedirectTokenType = "redirect"

// Verifier validates bearer tokens and builds the Identity the rest of the
// server authorizes against.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier around an HS256 signing secret. Per the
// external interface contract the secret is generated per run when not
// configured; callers own that decision, not this package.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

type claims struct {
	Groups    []string `json:"groups,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// IdentityFromContext reads the bearer token out of incoming gRPC
// metadata and verifies it, returning Unauthenticated on any failure:
// missing header, malformed token, bad signature, or expiry.
func (v *Verifier) IdentityFromContext(ctx context.Context) (model.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return model.Identity{}, svcerr.New(svcerr.Unauthenticated, "auth: no request metadata")
	}
	token, err := bearerToken(md)
	if err != nil {
		return model.Identity{}, err
	}
	return v.Verify(token)
}

// Verify parses and validates a raw bearer token string.
func (v *Verifier) Verify(token string) (model.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, svcerr.New(svcerr.Unauthenticated, "auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Identity{}, svcerr.Wrap(svcerr.Unauthenticated, err, "auth: invalid bearer token")
	}
	if c.Subject == "" {
		return model.Identity{}, svcerr.New(svcerr.Unauthenticated, "auth: token has no subject claim")
	}

	verifiedClaims := map[string]string{}
	if c.TokenType != "" {
		verifiedClaims["token_type"] = c.TokenType
	}
	if c.TokenType == RedirectTokenType {
		verifiedClaims["redirect_token"] = token
	}
	return model.NewIdentity(c.Subject, c.Groups, verifiedClaims), nil
}

func bearerToken(md metadata.MD) (string, error) {
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", svcerr.New(svcerr.Unauthenticated, "auth: missing Authorization header")
	}
	const prefix = "Bearer "
	raw := values[0]
	if !strings.HasPrefix(raw, prefix) {
		return "", svcerr.New(svcerr.Unauthenticated, "auth: Authorization header is not a bearer token")
	}
	return strings.TrimPrefix(raw, prefix), nil
}

// Sign issues a new HS256 token for user, used by the (out-of-core) login
// sidecar; kept here so login and verification share one secret and claim
// shape.
func (v *Verifier) Sign(user string, groups []string) (string, error) {
	c := claims{
		Groups:           groups,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(v.secret)
}
