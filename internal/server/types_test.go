package server

import (
	"encoding/json"
	"testing"
)

// TestTruncate verifies rune-safe length capping for names and messages.
func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 32, "short"},
		{"exactly-8", 9, "exactly-8"},
		{"overlong input", 8, "overlong"},
		{"héllo wörld", 5, "héllo"},
		{"何らかの長い名前です", 4, "何らかの"},
		{"anything", 0, ""},
	}

	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

// TestEncodeEvent verifies the outbound envelope shape.
func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(EventSystem, SystemNotice{Type: SystemJoin, Username: "Alice"})
	if err != nil {
		t.Fatalf("encodeEvent returned error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope does not round-trip: %v", err)
	}
	if env.Event != EventSystem {
		t.Errorf("event = %q, want %q", env.Event, EventSystem)
	}

	var notice SystemNotice
	if err := json.Unmarshal(env.Data, &notice); err != nil {
		t.Fatalf("payload does not round-trip: %v", err)
	}
	if notice.Username != "Alice" {
		t.Errorf("username = %q, want Alice", notice.Username)
	}
}
