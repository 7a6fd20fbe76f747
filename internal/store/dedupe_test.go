package store

import "testing"

func TestDedupeWindowOverrideFixedFeatures(t *testing.T) {
	hours, indefinite := DedupeWindowOverride("daily_digest")
	if hours != 20 || indefinite {
		t.Errorf("daily_digest: got (%v, %v), want (20, false)", hours, indefinite)
	}

	hours, indefinite = DedupeWindowOverride("morning_brief")
	if hours != 20 || indefinite {
		t.Errorf("morning_brief: got (%v, %v), want (20, false)", hours, indefinite)
	}

	hours, indefinite = DedupeWindowOverride("meeting_prep")
	if !indefinite {
		t.Errorf("meeting_prep: want indefinite=true, got hours=%v indefinite=%v", hours, indefinite)
	}

	hours, indefinite = DedupeWindowOverride("deal_momentum_nudge")
	if indefinite || hours != 0 {
		t.Errorf("deal_momentum_nudge: want caller-determined (0, false), got (%v, %v)", hours, indefinite)
	}
}

func TestDedupeKeyHashStableAcrossCalls(t *testing.T) {
	if dedupeKeyHash("daily_digest", "org-1", "U1", "") != dedupeKeyHash("daily_digest", "org-1", "U1", "") {
		t.Fatal("dedupeKeyHash must be stable for identical inputs")
	}
}
