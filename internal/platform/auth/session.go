package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the session identity a request runs under. RootID is the
// authenticated subject; EffectiveID is the account the session is acting
// as after a switch. Every authorization decision uses EffectiveID, while
// switch validation always goes back to RootID, so a switched session can
// never chain into accounts its root identity cannot reach.
type Identity struct {
	RootID      string
	EffectiveID string
}

// Switched reports whether the session carries an acting-account override.
func (id Identity) Switched() bool {
	return id.EffectiveID != id.RootID
}

// IdentityFromContext assembles the session identity from the request
// context. Without an act override the effective identity is the root.
func IdentityFromContext(ctx context.Context) Identity {
	root := UserIDFromContext(ctx)
	id := Identity{RootID: root, EffectiveID: root}
	if act, _ := ctx.Value(ActingIDKey).(string); act != "" {
		id.EffectiveID = act
	}
	return id
}

// TokenIssuer mints the HS256 session tokens handed back by account
// switching. The act claim carries the effective identity; switch-back
// simply mints a token without it.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenIssuer(signingKey []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{signingKey: signingKey, issuer: issuer, ttl: ttl}
}

// MintSession issues a token for rootID acting as actingID. An empty
// actingID (or actingID == rootID) clears the override.
func (i *TokenIssuer) MintSession(rootID, actingID string, roles []string, now time.Time) (string, error) {
	if rootID == "" {
		return "", fmt.Errorf("root identity is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rootID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Roles: roles,
	}
	if actingID != "" && actingID != rootID {
		claims.Act = actingID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}
