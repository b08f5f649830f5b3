// Package signature verifies HMAC-SHA256 signatures on inbound webhooks.
//
// The sender signs the raw request body with a shared secret and sends the
// result in the X-Hub-Signature-256 header as "sha256=<hex>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Header is the request header carrying the body signature.
const Header = "X-Hub-Signature-256"

const scheme = "sha256="

var (
	ErrMissingSignature = errors.New("grantrelay: missing webhook signature")
	ErrInvalidSignature = errors.New("grantrelay: invalid webhook signature")
)

// Sign returns the header value for payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return scheme + hex.EncodeToString(mac.Sum(nil))
}

// Check verifies sig against payload under secret in constant time. It
// returns ErrMissingSignature or ErrInvalidSignature on failure.
func Check(payload []byte, secret, sig string) error {
	if sig == "" {
		return ErrMissingSignature
	}
	hexSum, ok := strings.CutPrefix(sig, scheme)
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
