package apperr

import (
	"errors"
	"testing"
)

func TestError_MessageIncludesWrappedError(t *testing.T) {
	err := Wrap(Transport, "sd engine unreachable", errors.New("connection refused"))
	got := err.Error()
	want := "sd engine unreachable: connection refused"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestError_MessageWithoutWrappedError(t *testing.T) {
	err := New(Validation, "bad prompt")
	if err.Error() != "bad prompt" {
		t.Fatalf("got %q, want %q", err.Error(), "bad prompt")
	}
}

func TestUnwrap_ReturnsWrappedError(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(Internal, "failed", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to unwrap to inner error")
	}
}

func TestKindOf_ReturnsInternalForPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != Internal {
		t.Fatalf("expected Internal for a non-apperr error")
	}
}

func TestKindOf_ReturnsDeclaredKind(t *testing.T) {
	err := Newf(apperrTestKind(), "job %q not found", "abc")
	if KindOf(err) != NotFound {
		t.Fatalf("got %v, want NotFound", KindOf(err))
	}
}

func apperrTestKind() Kind { return NotFound }

func TestIs_MatchesKind(t *testing.T) {
	err := New(Conflict, "lora conflict")
	if !Is(err, Conflict) {
		t.Fatalf("expected Is to match Conflict")
	}
	if Is(err, Validation) {
		t.Fatalf("expected Is not to match Validation")
	}
}
