package nanoid

import (
	"strings"
	"testing"
)

func TestNewWithLen(t *testing.T) {
	for _, n := range []int{0, 1, 5, 21, 64} {
		id := NewWithLen(n)
		if len(id) != n {
			t.Errorf("NewWithLen(%d) returned %q of length %d", n, id, len(id))
		}
		for _, c := range id {
			if !strings.ContainsRune(idLetters, c) {
				t.Errorf("NewWithLen(%d) returned %q with unexpected rune %q", n, id, c)
			}
		}
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewWithLen(12)
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
	if got := len(New()); got != defaultLen {
		t.Errorf("New() length = %d, want %d", got, defaultLen)
	}
}
