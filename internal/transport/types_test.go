package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) != nil")
	}

	base := errors.New("bot was kicked")
	p := Permanent(base)
	if !IsPermanent(p) {
		t.Fatalf("IsPermanent(Permanent(err)) = false")
	}
	if !errors.Is(p, base) {
		t.Fatalf("wrapped error lost")
	}
	if p.Error() != base.Error() {
		t.Fatalf("Error() = %q, want %q", p.Error(), base.Error())
	}

	// The marker survives further wrapping.
	wrapped := fmt.Errorf("sending: %w", p)
	if !IsPermanent(wrapped) {
		t.Fatalf("marker lost after fmt.Errorf wrap")
	}

	if IsPermanent(base) {
		t.Fatalf("unmarked error reported permanent")
	}
}
