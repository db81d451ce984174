package tools

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
)

// VerifySHA256Signature checks header ("sha256=<hex>") against the
// HMAC-SHA256 of body keyed with secret.
func VerifySHA256Signature(secret string, body []byte, header string) error {
	sig := strings.TrimSpace(header)
	if sig == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return ErrInvalidSignature
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignSHA256 returns the header value VerifySHA256Signature accepts.
func SignSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
