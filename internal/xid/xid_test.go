package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewPrefixesRandomUUID(t *testing.T) {
	a := New("push")
	b := New("push")
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, "push-") {
		t.Fatalf("expected push- prefix, got %q", a)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(a, "push-")); err != nil {
		t.Fatalf("expected uuid suffix, got %q: %v", a, err)
	}
}
