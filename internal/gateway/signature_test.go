package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	sig := sign("topsecret", payload)
	if !VerifySignature("topsecret", payload, sig) {
		t.Error("VerifySignature() = false, want true for a correctly signed payload")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	sig := sign("topsecret", payload)
	if VerifySignature("othersecret", payload, sig) {
		t.Error("VerifySignature() = true, want false for wrong secret")
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	sig := sign("topsecret", payload)
	if VerifySignature("topsecret", []byte(`{"action":"closed"}`), sig) {
		t.Error("VerifySignature() = true, want false for tampered payload")
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	if VerifySignature("topsecret", []byte("x"), "") {
		t.Error("VerifySignature() = true, want false for missing signature header")
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	if VerifySignature("topsecret", []byte("x"), "not-a-valid-signature") {
		t.Error("VerifySignature() = true, want false for malformed header")
	}
}

func TestVerifySignature_NoSecretConfigured_SkipsVerification(t *testing.T) {
	if !VerifySignature("", []byte("anything"), "") {
		t.Error("VerifySignature() = false, want true when no secret is configured")
	}
}
