package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "missing owner account",
			err:         &ValidationError{Field: "owner_account_id", Reason: "is required"},
			wantCode:    "VAL001",
			wantMessage: "No owner account was selected",
		},
		{
			name:        "malformed lock id",
			err:         &ValidationError{Field: "bound_lock_id", Reason: "is malformed"},
			wantCode:    "VAL002",
			wantMessage: "The selected account or lock is not valid",
		},
		{
			name:        "unsupported order",
			err:         &ValidationError{Field: "order", Reason: "must be asc or desc"},
			wantCode:    "VAL003",
			wantMessage: "The requested sort order is not supported",
		},
		{
			name:        "remote 401 means signed out",
			err:         &RetrievalError{Path: "Owners/a/LogEntries", Status: 401},
			wantCode:    "AUTH001",
			wantMessage: "Your session with the lock platform has expired",
		},
		{
			name:        "remote 404",
			err:         &RetrievalError{Path: "Owners/a/BoundLocks/b", Status: 404},
			wantCode:    "REM001",
			wantMessage: "The account or lock was not found",
		},
		{
			name:        "remote 500",
			err:         &RetrievalError{Path: "Owners/a/LogEntries", Status: 500},
			wantCode:    "REM002",
			wantMessage: "The lock platform reported an error",
		},
		{
			name:        "non array body",
			err:         &RetrievalError{Path: "Owners/a/LogEntries", Err: errNotArray},
			wantCode:    "REM003",
			wantMessage: "The lock platform sent data that could not be read",
		},
		{
			name:        "wrapped busy error",
			err:         fmt.Errorf("export: %w", ErrTooManyExports),
			wantCode:    "EXP001",
			wantMessage: "Too many exports are running",
		},
		{
			name:        "deadline",
			err:         &RetrievalError{Path: "Owners/a/LogEntries", Err: context.DeadlineExceeded},
			wantCode:    "EXP002",
			wantMessage: "The export took too long",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("dial tcp: CONNECTION REFUSED"),
			wantCode:    "REM004",
			wantMessage: "The lock platform could not be reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyExports)

	expected := "Too many exports are running (Code: EXP001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  &RetrievalError{Path: "Owners", Status: 403},
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
