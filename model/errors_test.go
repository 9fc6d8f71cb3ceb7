package model

import (
	"errors"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	err := NewCircularDependencyError("edge t1 -> t2 would close a cycle")
	want := "CIRCULAR_DEPENDENCY: edge t1 -> t2 would close a cycle"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"envelope", NewConflictError("version mismatch"), ErrConflict},
		{"illegal transition", NewIllegalTransitionError("x"), ErrIllegalTransition},
		{"plain error", errors.New("boom"), ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewGuardNotSatisfiedError_detail(t *testing.T) {
	err := NewGuardNotSatisfiedError("guard rejected transition", "approvals_recorded >= approvals_required")
	if len(err.Details) != 1 {
		t.Fatalf("Details len = %d, want 1", len(err.Details))
	}
	if err.Details[0].Field != "guard" {
		t.Errorf("Details[0].Field = %q", err.Details[0].Field)
	}
	if err.Details[0].Message != "approvals_recorded >= approvals_required" {
		t.Errorf("Details[0].Message = %q", err.Details[0].Message)
	}
}
