package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func dedupeKeyHash(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "||")))
	return hex.EncodeToString(h.Sum(nil))
}

// DedupeWindowOverride returns the dedupe window for a feature, overriding the
// generic cooldown-derived window for features with fixed semantics
// named in the component design: daily digest and morning brief dedupe
// for 20 hours (just under a calendar day, so a retried cron a few
// minutes later still collides), meeting prep dedupes indefinitely per
// meeting id (indefinite=true signals "no expiry, check SentRecord
// existence only"). Any other feature gets (0, false): no override.
func DedupeWindowOverride(feature string) (hours float64, indefinite bool) {
	switch feature {
	case "daily_digest", "morning_brief":
		return 20, false
	case "meeting_prep":
		return 0, true
	default:
		return 0, false
	}
}
