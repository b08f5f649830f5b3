package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret creates a random shared secret suitable for configuring
// on the webhook sender: 32 random bytes, hex encoded (64 characters).
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("grantrelay: failed to generate random secret: " + err.Error())
	}
	return hex.EncodeToString(b)
}
