package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

const (
	signatureHeader = "X-Signature"
	maxSignedBody   = 64 << 10
)

// validateSharedSecret checks X-Signature against hex HMAC-SHA256(body, secret).
// An empty secret skips validation.
func validateSharedSecret(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body)) // restore for decoding

	return hmac.Equal([]byte(sig), []byte(Sign(body, secret)))
}

// Sign returns the X-Signature value for body. Callers of /api/push/send use it.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
