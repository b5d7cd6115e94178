package keys

import (
	"regexp"
	"testing"
)

func TestNewSessionID(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		if !re.MatchString(id) {
			t.Fatalf("id = %q, want 32 lowercase hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewRequestNonceDiffers(t *testing.T) {
	if NewRequestNonce() == NewRequestNonce() {
		t.Fatal("nonces repeat")
	}
}
