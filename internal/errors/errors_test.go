package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWMError_Error(t *testing.T) {
	err := &WMError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "dive not found",
	}

	expected := "NOT_FOUND: dive not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("name is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "name is required" {
		t.Errorf("Message = %q, want %q", err.Message, "name is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("dive", "auth")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "auth" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "auth")
	}
	if err.Details["kind"] != "dive" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "dive")
	}
}

func TestNewAlreadyExists(t *testing.T) {
	err := NewAlreadyExists("dive", "auth")

	if err.Code != ErrAlreadyExists {
		t.Errorf("Code = %q, want %q", err.Code, ErrAlreadyExists)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
}

func TestNewCannotDeleteCurrent(t *testing.T) {
	err := NewCannotDeleteCurrent("auth")

	if err.Code != ErrCannotDeleteCurrent {
		t.Errorf("Code = %q, want %q", err.Code, ErrCannotDeleteCurrent)
	}
	if err.Details["name"] != "auth" {
		t.Errorf("Details[name] = %v, want %q", err.Details["name"], "auth")
	}
}

func TestNewAmbiguousValue(t *testing.T) {
	err := NewAmbiguousValue("HAS_KNOWLEDGE", "maybe")

	if err.Code != ErrAmbiguousValue {
		t.Errorf("Code = %q, want %q", err.Code, ErrAmbiguousValue)
	}
	if err.Details["value"] != "maybe" {
		t.Errorf("Details[value] = %v, want %q", err.Details["value"], "maybe")
	}
}

func TestNewIO_Unwraps(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIO("write cache", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected NewIO to wrap its cause")
	}
	if err.Message != "write cache: disk full" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("boom"))
	if err.Message != "boom" {
		t.Errorf("Message = %q, want %q", err.Message, "boom")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("dive", "x"), ErrNotFound, true},
		{"different code", NewNotFound("dive", "x"), ErrAlreadyExists, false},
		{"wrapped", fmt.Errorf("ctx: %w", NewTimeout("generate")), ErrTimeout, true},
		{"foreign error", fmt.Errorf("plain"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewLocked("/tmp/x")); got != ErrLocked {
		t.Errorf("CodeOf = %q, want %q", got, ErrLocked)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("CodeOf = %q, want %q", got, ErrInternal)
	}
}
