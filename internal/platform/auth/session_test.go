package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIdentityFromContext_Empty(t *testing.T) {
	id := IdentityFromContext(context.Background())
	if id.RootID != "" || id.EffectiveID != "" {
		t.Errorf("expected empty identity, got %+v", id)
	}
	if id.Switched() {
		t.Error("empty identity should not report switched")
	}
}

func TestIdentityFromContext_RootOnly(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-1")
	id := IdentityFromContext(ctx)
	if id.RootID != "user-1" || id.EffectiveID != "user-1" {
		t.Errorf("expected root==effective==user-1, got %+v", id)
	}
	if id.Switched() {
		t.Error("identity without act should not report switched")
	}
}

func TestIdentityFromContext_WithAct(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "parent-1")
	ctx = context.WithValue(ctx, ActingIDKey, "child-1")
	id := IdentityFromContext(ctx)
	if id.RootID != "parent-1" {
		t.Errorf("expected root parent-1, got %s", id.RootID)
	}
	if id.EffectiveID != "child-1" {
		t.Errorf("expected effective child-1, got %s", id.EffectiveID)
	}
	if !id.Switched() {
		t.Error("expected switched identity")
	}
}

func TestMintSession_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "caregraph", time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tokenStr, err := issuer.MintSession("parent-1", "child-1", []string{"patient"}, now)
	if err != nil {
		t.Fatalf("MintSession: %v", err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return testSigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !token.Valid {
		t.Fatalf("parse minted token: %v", err)
	}

	if claims.Subject != "parent-1" {
		t.Errorf("expected subject parent-1, got %s", claims.Subject)
	}
	if claims.Act != "child-1" {
		t.Errorf("expected act child-1, got %s", claims.Act)
	}
	if claims.Issuer != "caregraph" {
		t.Errorf("expected issuer caregraph, got %s", claims.Issuer)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "patient" {
		t.Errorf("expected roles=[patient], got %v", claims.Roles)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expiry %v, got %v", now.Add(time.Hour), claims.ExpiresAt.Time)
	}
}

func TestMintSession_SwitchBackClearsAct(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "caregraph", time.Hour)
	now := time.Now()

	for _, acting := range []string{"", "parent-1"} {
		tokenStr, err := issuer.MintSession("parent-1", acting, nil, now)
		if err != nil {
			t.Fatalf("MintSession(acting=%q): %v", acting, err)
		}

		claims := &Claims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return testSigningKey, nil
		}); err != nil {
			t.Fatalf("parse minted token: %v", err)
		}
		if claims.Act != "" {
			t.Errorf("acting=%q: expected empty act claim, got %s", acting, claims.Act)
		}
	}
}

func TestMintSession_RequiresRoot(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "caregraph", time.Hour)
	if _, err := issuer.MintSession("", "child-1", nil, time.Now()); err == nil {
		t.Error("expected error for empty root identity")
	}
}
