package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOf_AppError(t *testing.T) {
	err := New(CodeInvalidArgument, "bad input")
	if got := CodeOf(err); got != CodeInvalidArgument {
		t.Errorf("expected %q, got %q", CodeInvalidArgument, got)
	}
}

func TestCodeOf_WrappedAppError(t *testing.T) {
	inner := New(CodeNotFound, "missing")
	wrapped := fmt.Errorf("outer context: %w", inner)
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Errorf("expected %q through fmt wrapping, got %q", CodeNotFound, got)
	}
}

func TestCodeOf_PlainError(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Errorf("expected %q for non-AppError, got %q", CodeUnknown, got)
	}
}

func TestCodeOf_Nil(t *testing.T) {
	if got := CodeOf(nil); got != CodeUnknown {
		t.Errorf("expected %q for nil, got %q", CodeUnknown, got)
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := stderrors.New("db connection refused")
	err := Wrap(CodeInternal, "store operation failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if got := CodeOf(err); got != CodeInternal {
		t.Errorf("expected %q, got %q", CodeInternal, got)
	}
}

func TestErrorMessage_IncludesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeInternal, "op failed", cause)
	want := "op failed: boom"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(ErrSessionNotFound, CodeNotFound) {
		t.Error("ErrSessionNotFound should carry CodeNotFound")
	}
	if HasCode(ErrSessionNotFound, CodeSessionClosed) {
		t.Error("ErrSessionNotFound should not carry CodeSessionClosed")
	}
}

func TestSentinelCodes(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{ErrSessionNotFound, CodeNotFound},
		{ErrEntryNotFound, CodeNotFound},
		{ErrSessionClosed, CodeSessionClosed},
		{ErrAlreadyMatched, CodeAlreadyMatched},
		{ErrEmptyContent, CodeInvalidArgument},
		{ErrNotParticipant, CodeInvalidArgument},
		{ErrInvalidFeeling, CodeInvalidArgument},
		{ErrNeedsHelpWithoutFeeling, CodeNeedsHelpWithoutFeeling},
		{ErrSelfMatch, CodeInvalidArgument},
		{ErrRateLimited, CodeRateLimited},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Errorf("%v: expected code %q, got %q", tc.err, tc.code, got)
		}
	}
}

func TestErrStoreFailure(t *testing.T) {
	cause := stderrors.New("timeout")
	err := ErrStoreFailure("commit match", cause)
	if !HasCode(err, CodeInternal) {
		t.Errorf("expected CodeInternal, got %q", CodeOf(err))
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}
