// Package webhook implements Webhook Ingest (component I): signature
// verification, payload normalization into canonical call/interaction
// events, owner resolution, and the ordered idempotent side effects that
// feed the transcript queue and the Dispatcher.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// replayWindow is the maximum allowed clock skew between a webhook's
// claimed timestamp and now, in either direction.
const replayWindow = 10 * time.Minute

// VerifyProxySignature checks the `X-Use60-Signature: v1=<hex>` scheme:
// HMAC-SHA256(secret, "v1:"+timestamp+":"+rawBody), constant-time
// compared against the provided hex digest.
func VerifyProxySignature(secret, timestamp, rawBody, providedHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v1:" + timestamp + ":" + rawBody))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(providedHex))
}

// VerifyProviderSignature checks the telephony provider's native
// signature scheme: HMAC-SHA256(secret, secret+"|"+urlencode(url)+"|"+type+"|"+ts),
// version v1 only.
func VerifyProviderSignature(secret, webhookURL, eventType, timestamp, providedHex string) bool {
	signed := secret + "|" + url.QueryEscape(webhookURL) + "|" + eventType + "|" + timestamp
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(providedHex))
}

// WithinReplayWindow reports whether a claimed unix-seconds timestamp is
// within ±10 minutes of now — outside this window the request is
// rejected as a stale/replayed webhook regardless of signature validity.
func WithinReplayWindow(now time.Time, timestampUnixSeconds string) bool {
	ts, err := strconv.ParseInt(timestampUnixSeconds, 10, 64)
	if err != nil {
		return false
	}
	claimed := time.Unix(ts, 0)
	diff := now.Sub(claimed)
	if diff < 0 {
		diff = -diff
	}
	return diff <= replayWindow
}
