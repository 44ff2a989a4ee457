package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// HMACSignatureService verifies provider webhook signatures using
// HMAC-SHA512 over the exact raw request body, as the gateway specifies.
// Re-serializing parsed JSON can silently change the signed bytes, so the
// raw body must be passed through untouched.
type HMACSignatureService struct {
	secret []byte
}

// NewHMACSignatureService creates a signature service bound to the gateway
// secret key.
func NewHMACSignatureService(secret string) *HMACSignatureService {
	return &HMACSignatureService{secret: []byte(secret)}
}

// Sign computes HMAC-SHA512 of payload. Returns lowercase hex.
func (s *HMACSignatureService) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against HMAC-SHA512(secret, payload) in constant
// time.
func (s *HMACSignatureService) Verify(payload []byte, signature string) bool {
	expected := s.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
