package token

import (
	"testing"
	"time"

	"CareFollow/pkg/errors"
)

func TestIssueAndParse(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	signed, expiresAt, err := issuer.Issue("discharge-flow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt = %v, want future", expiresAt)
	}

	service, err := issuer.Parse(signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service != "discharge-flow" {
		t.Errorf("service = %q, want discharge-flow", service)
	}
}

func TestParseRejects(t *testing.T) {
	issuer, _ := NewIssuer("test-secret", time.Hour)
	other, _ := NewIssuer("other-secret", time.Hour)
	foreign, _, err := other.Issue("discharge-flow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expiredIssuer, _ := NewIssuer("test-secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIssuer.Issue("discharge-flow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Parse(tt.token); !errors.Is(err, errors.ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewIssuer("secret", 0); err == nil {
		t.Error("expected error for zero ttl")
	}

	issuer, _ := NewIssuer("secret", time.Hour)
	if _, _, err := issuer.Issue(" "); !errors.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
