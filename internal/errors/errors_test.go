package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"testing"
)

func TestKikiError_Error(t *testing.T) {
	err := &KikiError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "status not found",
	}

	expected := "NOT_FOUND: status not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("unknown source kind")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "unknown source kind" {
		t.Errorf("Message = %q, want %q", err.Message, "unknown source kind")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("status.json")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "status.json" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "status.json")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	err := NewInvalidConfig("burst_window", "must be positive")

	if err.Code != ErrInvalidConfig {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidConfig)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Details["field"] != "burst_window" {
		t.Errorf("Details[field] = %v, want burst_window", err.Details["field"])
	}
}

func TestNewStatusMissing_Unwraps(t *testing.T) {
	err := NewStatusMissing(os.ErrNotExist)

	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
}

func TestNewStatusCorrupt(t *testing.T) {
	err := NewStatusCorrupt(fmt.Errorf("unexpected end of JSON input"))

	if err.Code != ErrStatusCorrupt {
		t.Errorf("Code = %q, want %q", err.Code, ErrStatusCorrupt)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if err.Message != "failed to read status: unexpected end of JSON input" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("disk full"))
		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Message != "disk full" {
			t.Errorf("Message = %q, want %q", err.Message, "disk full")
		}
	})

	t.Run("nil error", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Message != "internal error" {
			t.Errorf("Message = %q, want %q", err.Message, "internal error")
		}
	})
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewStatusMissing(nil), ErrStatusMissing, true},
		{"different code", NewStatusMissing(nil), ErrStatusCorrupt, false},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}
