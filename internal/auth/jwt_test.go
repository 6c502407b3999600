package auth

import (
	"context"
	"testing"
	"time"

	"deliverySync/internal/testutil"
)

const testSecret = "test-secret"

func TestParseFromMD_ValidBearer(t *testing.T) {
	tok := testutil.GenerateJWTWithID(t, testSecret, "alice@example.com", "agent", 12)
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	p, err := ParseFromMD(ctx, testSecret)
	if err != nil {
		t.Fatalf("ParseFromMD: %v", err)
	}
	if p.Name != "alice@example.com" || p.Kind != KindAgent || p.ID != 12 {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestParseFromMD_MissingHeader(t *testing.T) {
	if _, err := ParseFromMD(context.Background(), testSecret); err == nil {
		t.Fatalf("expected error for missing metadata")
	}
}

func TestParseBearer_InvalidSchemeAndSecret(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "bob", "restaurant")
	if _, err := ParseBearer("Token "+tok, testSecret); err == nil {
		t.Fatalf("expected error for non-Bearer scheme")
	}
	if _, err := parseJWT(tok, "wrong"); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestParseJWT_ClaimsValidation(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "", "")
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected invalid claims error")
	}
}

func TestIssue_RoundTripAndExpiry(t *testing.T) {
	tok, err := Issue(testSecret, "rest-1", KindRestaurant, 4, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := ParseBearer("Bearer "+tok, testSecret)
	if err != nil || p.Kind != KindRestaurant || p.ID != 4 {
		t.Fatalf("parse issued token: %+v err=%v", p, err)
	}
	expired, err := Issue(testSecret, "rest-1", KindRestaurant, 4, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Negative ttl means no expiry claim, so the token is still valid.
	if _, err := ParseBearer("Bearer "+expired, testSecret); err != nil {
		t.Fatalf("token without expiry rejected: %v", err)
	}
}

func TestPeekClaims_NoSecretNeeded(t *testing.T) {
	tok := testutil.GenerateJWTWithID(t, testSecret, "courier", "agent", 3)
	c, err := PeekClaims(tok)
	if err != nil {
		t.Fatalf("PeekClaims: %v", err)
	}
	p, err := c.Principal()
	if err != nil || p.ID != 3 || p.Kind != KindAgent {
		t.Fatalf("principal=%+v err=%v", p, err)
	}
}
