package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCartError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpFetch,
			component: "transport/http",
			code:      ErrCodeNetworkFailure,
			err:       fmt.Errorf("connection refused"),
			want:      "fetch operation failed in transport/http component [NETWORK_FAILURE]: connection refused",
		},
		{
			name:      "with component no code",
			op:        OpGuestToken,
			component: "storage/sqlite",
			err:       fmt.Errorf("disk full"),
			want:      "guest_token operation failed in storage/sqlite component: disk full",
		},
		{
			name: "without component with code",
			op:   OpCreateLine,
			code: ErrCodeRemoteRejected,
			err:  fmt.Errorf("out of stock"),
			want: "create_line operation failed [REMOTE_REJECTED]: out of stock",
		},
		{
			name: "without component or code",
			op:   OpMerge,
			err:  fmt.Errorf("timeout"),
			want: "merge operation failed: timeout",
		},
		{
			name: "no cause",
			op:   OpClear,
			want: "clear operation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &CartError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("CartError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewNetworkError(t *testing.T) {
	cause := fmt.Errorf("network failure")
	cartErr := NewNetworkError(OpFetch, cause)

	if cartErr.Code != ErrCodeNetworkFailure {
		t.Errorf("NewNetworkError() Code = %v, want %v", cartErr.Code, ErrCodeNetworkFailure)
	}
	if cartErr.Kind != KindTransport {
		t.Errorf("NewNetworkError() Kind = %v, want %v", cartErr.Kind, KindTransport)
	}
	if cartErr.Err != cause {
		t.Errorf("NewNetworkError() Err = %v, want %v", cartErr.Err, cause)
	}
	if !cartErr.Retryable {
		t.Error("NewNetworkError() created non-retryable error")
	}
}

func TestNewRemoteError(t *testing.T) {
	cause := &RemoteStatusError{StatusCode: 409, Body: "conflict"}
	cartErr := NewRemoteError(OpUpdateLine, cause)

	if cartErr.Kind != KindRemote {
		t.Errorf("NewRemoteError() Kind = %v, want %v", cartErr.Kind, KindRemote)
	}
	if cartErr.Retryable {
		t.Error("NewRemoteError() created retryable error when it shouldn't")
	}
	if got := StatusCode(fmt.Errorf("wrapped: %w", cartErr)); got != 409 {
		t.Errorf("StatusCode() = %d, want 409", got)
	}
}

func TestNewStorageError(t *testing.T) {
	cause := fmt.Errorf("storage failure")
	cartErr := NewStorageError(OpGuestToken, cause)

	if cartErr.Code != ErrCodeStorageFailure {
		t.Errorf("NewStorageError() Code = %v, want %v", cartErr.Code, ErrCodeStorageFailure)
	}
	if cartErr.Component != "store" {
		t.Errorf("NewStorageError() Component = %v, want %v", cartErr.Component, "store")
	}
	if !cartErr.Retryable {
		t.Error("NewStorageError() created non-retryable error")
	}
}

func TestNewValidationError(t *testing.T) {
	cartErr := NewValidationError(OpConfig, fmt.Errorf("base url is required"))

	if cartErr.Code != ErrCodeValidationFailure {
		t.Errorf("NewValidationError() Code = %v, want %v", cartErr.Code, ErrCodeValidationFailure)
	}
	if cartErr.Retryable {
		t.Error("NewValidationError() created retryable error when it shouldn't")
	}
}

func TestE(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := E(OpFetch, Component("transport/http"), KindTransport, cause, "GET /cart/")

	var cartErr *CartError
	if !errors.As(err, &cartErr) {
		t.Fatalf("E() did not produce a CartError: %T", err)
	}
	if cartErr.Op != OpFetch {
		t.Errorf("E() Op = %v, want %v", cartErr.Op, OpFetch)
	}
	if cartErr.Component != "transport/http" {
		t.Errorf("E() Component = %v, want transport/http", cartErr.Component)
	}
	if !cartErr.Retryable {
		t.Error("E() with KindTransport should be retryable")
	}
	if !errors.Is(err, cause) {
		t.Error("E() lost the wrapped cause")
	}
	if KindOf(err) != KindTransport {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindTransport)
	}
}

func TestE_MessageOnly(t *testing.T) {
	err := E(OpConfig, KindInvalid, "base url is required")
	if got, want := err.Error(), "config operation failed: base url is required"; got != want {
		t.Errorf("E() = %q, want %q", got, want)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable cart error",
			err:  NewNetworkError(OpFetch, fmt.Errorf("temporary error")),
			want: true,
		},
		{
			name: "non-retryable cart error",
			err:  New(OpAdd, fmt.Errorf("permanent error")),
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("regular error"),
			want: false,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewNetworkError(OpMerge, fmt.Errorf("temporary"))),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapOpComponent(t *testing.T) {
	if WrapOpComponent(nil, OpFetch, "transport/http") != nil {
		t.Error("WrapOpComponent(nil) should return nil")
	}

	err := WrapOpComponentKind(fmt.Errorf("locked"), OpGuestToken, "storage/sqlite", KindStorage)
	var cartErr *CartError
	if !errors.As(err, &cartErr) {
		t.Fatal("errors.As() failed to detect CartError")
	}
	if cartErr.Op != OpGuestToken || cartErr.Component != "storage/sqlite" || cartErr.Kind != KindStorage {
		t.Errorf("unexpected wrap result: %+v", cartErr)
	}
}

func TestE_InheritsFromWrappedCartError(t *testing.T) {
	inner := NewNetworkError(OpFetch, fmt.Errorf("connection refused"))
	err := WrapOpComponent(inner, OpReload, "synckit")

	if KindOf(err) != KindTransport {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindTransport)
	}
	if !IsRetryable(err) {
		t.Error("wrapped transport error should stay retryable")
	}

	overridden := E(OpReload, KindRemote, inner)
	if KindOf(overridden) != KindRemote {
		t.Errorf("KindOf() = %v, want explicit %v", KindOf(overridden), KindRemote)
	}
}
