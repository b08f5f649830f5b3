package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/grantrelay/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"action":"member_added"}`)
	secret := "It's a Secret to Everybody"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := signature.Sign(payload, secret); got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignCheckRoundTrip(t *testing.T) {
	payload := []byte(`{"action":"member_removed","membership":{"user":{"login":"bob"}}}`)
	secret := "roundtrip"

	sig := signature.Sign(payload, secret)
	if err := signature.Check(payload, secret, sig); err != nil {
		t.Errorf("Check() = %v for valid signature", err)
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret")

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with 'sha256=', got %q", sig)
	}
	// sha256= prefix (7) + 64 hex chars
	if len(sig) != 71 {
		t.Errorf("expected signature length 71, got %d", len(sig))
	}
}

func TestCheckFailures(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "tamper"
	valid := signature.Sign(payload, secret)

	tests := []struct {
		name    string
		payload []byte
		secret  string
		sig     string
		want    error
	}{
		{"missing", payload, secret, "", signature.ErrMissingSignature},
		{"tampered payload", []byte(`{"original":false}`), secret, valid, signature.ErrInvalidSignature},
		{"wrong secret", payload, "other", valid, signature.ErrInvalidSignature},
		{"wrong scheme", payload, secret, "sha1=" + strings.TrimPrefix(valid, "sha256="), signature.ErrInvalidSignature},
		{"not hex", payload, secret, "sha256=zz", signature.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := signature.Check(tt.payload, tt.secret, tt.sig); !errors.Is(err, tt.want) {
				t.Fatalf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}
