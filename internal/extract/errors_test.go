package extract

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesSentinelOfSameKind(t *testing.T) {
	err := NewError(KindFetch, "GET http://x: status 404", nil)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected errors.Is(err, ErrFetch)")
	}
	if errors.Is(err, ErrIO) {
		t.Fatalf("fetch error must not match ErrIO")
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := NewError(KindPDFParse, "open pdf", errors.New("bad xref"))
	wrapped := fmt.Errorf("extract upload: %w", base)
	if got := KindOf(wrapped); got != KindPDFParse {
		t.Fatalf("KindOf = %q, want %q", got, KindPDFParse)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain error should have no kind")
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	orig := Errorf(KindEngineInit, "language %q not installed", "xyz")
	if got := Wrap(KindIO, "read", orig); got != error(orig) {
		t.Fatalf("Wrap replaced a typed error: %v", got)
	}
	plain := errors.New("boom")
	got := Wrap(KindIO, "read", plain)
	if KindOf(got) != KindIO || !errors.Is(got, plain) {
		t.Fatalf("Wrap did not classify plain error: %v", got)
	}
	if Wrap(KindIO, "read", nil) != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewError(KindIO, "empty input", nil)
	if err.Error() != "IO_ERROR: empty input" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
