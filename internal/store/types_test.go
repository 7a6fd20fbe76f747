package store

import "testing"

func TestStatusTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:    false,
		StatusScheduled:  false,
		StatusFailed:     false,
		StatusSent:       true,
		StatusCancelled:  true,
		StatusDeadLetter: true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("Status(%q).Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestDedupeKeyDeterministicAndDistinct(t *testing.T) {
	a := DedupeKey("daily_digest", "org-1", "U123", "")
	b := DedupeKey("daily_digest", "org-1", "U123", "")
	if a != b {
		t.Fatalf("DedupeKey not deterministic: %q != %q", a, b)
	}

	c := DedupeKey("daily_digest", "org-1", "U123", "deal-42")
	if a == c {
		t.Fatalf("DedupeKey collided across distinct entityId: %q", a)
	}

	d := DedupeKey("morning_brief", "org-1", "U123", "")
	if a == d {
		t.Fatalf("DedupeKey collided across distinct feature: %q", a)
	}
}
