package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	tok, err := Issue("user-1", "FACULTY", "Dr. Rao", "residency", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.Value == "" || tok.ID == "" {
		t.Fatalf("token incomplete: %+v", tok)
	}

	claims, err := Parse(tok.Value, "test-key", "residency")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if claims.Role != "FACULTY" {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.Name != "Dr. Rao" {
		t.Errorf("name = %q", claims.Name)
	}
	if claims.ID != tok.ID {
		t.Errorf("jti mismatch: %q != %q", claims.ID, tok.ID)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	tok, err := Issue("user-1", "INTERN", "A", "residency", "key-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(tok.Value, "key-b", "residency"); err == nil {
		t.Error("token signed with a different key must not parse")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	tok, err := Issue("user-1", "INTERN", "A", "other-service", "test-key", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(tok.Value, "test-key", "residency"); err == nil {
		t.Error("token from another issuer must not parse")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	tok, err := Issue("user-1", "INTERN", "A", "residency", "test-key", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(tok.Value, "test-key", "residency"); err == nil {
		t.Error("expired token must not parse")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-token", "test-key", "residency"); err == nil {
		t.Error("garbage must not parse")
	}
}
