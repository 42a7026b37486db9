package upgradeerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"with phase", New(KindStall, "downloading", errors.New("no progress")), "stall (phase=downloading): no progress"},
		{"without phase", New(KindInternal, "", errors.New("boom")), "internal: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindInsufficientDisk, "download", "need %.1fGB, have %.1fGB", 10.0, 4.5)
	want := "need 10.0GB, have 4.5GB"
	if err.Err.Error() != want {
		t.Errorf("underlying message = %q, want %q", err.Err.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(KindUnreachable, "validating", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed error", New(KindCancelled, "installing", errors.New("x")), KindCancelled},
		{"wrapped typed error", fmt.Errorf("context: %w", New(KindStall, "", errors.New("y"))), KindStall},
		{"plain error", errors.New("untyped"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Kind{KindUnreachable, KindStall}
	terminal := []Kind{KindAuth, KindInsufficientDisk, KindVersionNotFound, KindVerificationFailed,
		KindHAAmbiguous, KindDuplicateJob, KindConflictingType, KindValidationMargin, KindCancelled, KindInternal}

	for _, k := range retryable {
		if !k.IsRetryable() {
			t.Errorf("%s: expected IsRetryable() true", k)
		}
	}
	for _, k := range terminal {
		if k.IsRetryable() {
			t.Errorf("%s: expected IsRetryable() false", k)
		}
	}
}
