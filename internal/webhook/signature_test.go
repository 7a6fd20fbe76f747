package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyProxySignatureAcceptsValidSignature(t *testing.T) {
	secret := "shh"
	ts := "1700000000"
	body := `{"type":"call.completed"}`
	sig := sign(secret, "v1:"+ts+":"+body)

	assert.True(t, VerifyProxySignature(secret, ts, body, sig))
	assert.False(t, VerifyProxySignature(secret, ts, body, sig+"00"))
	assert.False(t, VerifyProxySignature("wrong-secret", ts, body, sig))
}

func TestVerifyProviderSignatureMatchesJustcallScheme(t *testing.T) {
	secret := "justcall-secret"
	webhookURL := "https://api.example.com/webhook"
	eventType := "call.completed"
	ts := "1700000000"

	message := secret + "|" + "https%3A%2F%2Fapi.example.com%2Fwebhook" + "|" + eventType + "|" + ts
	sig := sign(secret, message)

	assert.True(t, VerifyProviderSignature(secret, webhookURL, eventType, ts, sig))
	assert.False(t, VerifyProviderSignature(secret, webhookURL, "call.started", ts, sig))
}

// Scenario S7: a webhook with timestamp = now-15min is rejected as stale
// regardless of signature validity.
func TestWithinReplayWindowRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	stale := strconv.FormatInt(now.Add(-15*time.Minute).Unix(), 10)
	assert.False(t, WithinReplayWindow(now, stale))

	fresh := strconv.FormatInt(now.Add(-5*time.Minute).Unix(), 10)
	assert.True(t, WithinReplayWindow(now, fresh))

	futureSkew := strconv.FormatInt(now.Add(5*time.Minute).Unix(), 10)
	assert.True(t, WithinReplayWindow(now, futureSkew))

	tooFarFuture := strconv.FormatInt(now.Add(15*time.Minute).Unix(), 10)
	assert.False(t, WithinReplayWindow(now, tooFarFuture))
}

func TestWithinReplayWindowRejectsUnparseableTimestamp(t *testing.T) {
	assert.False(t, WithinReplayWindow(time.Now(), "not-a-number"))
}
