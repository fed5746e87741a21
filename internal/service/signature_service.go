package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HMACSignatureService implements ports.SignatureVerifier using HMAC-SHA256,
// the scheme providers use for the X-Hub-Signature-256 webhook header.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature verifier.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA256 of body using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the webhook signature header against HMAC-SHA256(secret,
// body). The provider prefixes the hex digest with "sha256="; both prefixed
// and bare forms are accepted. Constant-time comparison.
func (s *HMACSignatureService) Verify(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := s.Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
