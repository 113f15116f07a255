// Package signing computes and verifies HMAC-SHA256 signatures over alert
// request bodies.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Header carries the body signature on outgoing alert and contact requests.
const Header = "X-Beacon-Signature"

const prefix = "sha256="

// ErrInvalidSignature is returned for every verification failure. The
// cause is deliberately not distinguished.
var ErrInvalidSignature = errors.New("signature verification failed")

// Sign returns the header value for body: "sha256=<hex>".
func Sign(body []byte, secret string) string {
	return prefix + hex.EncodeToString(digest(body, secret))
}

// Verify accepts "sha256=<hex>" or bare hex and compares in constant time.
func Verify(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), prefix))
	if err != nil {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare(digest(body, secret), got) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
