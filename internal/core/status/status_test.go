package status

import (
	"errors"
	"testing"
)

func TestContinueDoneRetry(t *testing.T) {
	if !Continue().IsOK() || Continue().Code != CodeContinue {
		t.Fatalf("Continue() = %+v", Continue())
	}
	if !Done().IsDone() {
		t.Fatalf("Done() should be IsDone")
	}
	if !Retry().IsRetry() {
		t.Fatalf("Retry() should be IsRetry")
	}
	if Done().IsRetry() {
		t.Fatalf("Done() should not be IsRetry")
	}
}

func TestErrAndFatal(t *testing.T) {
	cause := errors.New("boom")
	e := Err(CodeSocketError, cause)
	if !e.IsError() || e.IsFatal() || e.IsOK() {
		t.Fatalf("Err severity wrong: %+v", e)
	}
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is should unwrap to cause")
	}

	f := Fatal(CodePollerError, cause)
	if !f.IsFatal() || f.IsError() || f.IsOK() {
		t.Fatalf("Fatal severity wrong: %+v", f)
	}
}

func TestZeroValueIsContinue(t *testing.T) {
	var s Status
	if !s.IsOK() || s.Code != CodeContinue {
		t.Fatalf("zero value should be OK/Continue, got %+v", s)
	}
}
