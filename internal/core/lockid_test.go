package core

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDecodeLockID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "prefix dropped",
			input:    "AAECAwQFBg==",
			expected: "02-03-04-05-06",
		},
		{
			name:     "zero valued prefix",
			input:    "AAABAgME",
			expected: "01-02-03-04",
		},
		{
			name:     "lowercase hex",
			input:    "AAGr",
			expected: "ab",
		},
		{
			name:     "high bytes",
			input:    "AAH//g==",
			expected: "ff-fe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLockID(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDecodeLockID_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "not base64!"},
		{name: "empty", input: ""},
		{name: "prefix only", input: "AAE="},
		{name: "single byte", input: "AA=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLockID(tt.input)
			if err == nil {
				t.Fatalf("expected error, got %q", got)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Input != tt.input {
				t.Errorf("Input = %q, want %q", de.Input, tt.input)
			}
		})
	}
}

func TestDecodeLockID_AllocationsIndependentOfLength(t *testing.T) {
	raw := make([]byte, 2+32)
	for i := range raw[2:] {
		raw[2+i] = byte(i)
	}
	packed := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeLockID(packed)
	if err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(got, "-"); len(parts) != 32 || parts[31] != "1f" {
		t.Fatalf("unexpected serial %q", got)
	}

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = DecodeLockID(packed)
	})
	if allocs > 6 {
		t.Errorf("DecodeLockID made %.0f allocations for a 32 byte id", allocs)
	}
}
