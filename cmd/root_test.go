package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pders01/snapsafe/internal/snaperr"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 1},
		{"io", snaperr.IO("snapshot", "a.txt", errors.New("disk full")), 1},
		{"user", snaperr.User("diff", "unknown snapshot"), 2},
		{"wrapped user", fmt.Errorf("context: %w", snaperr.User("diff", "bad")), 2},
		{"integrity", snaperr.Integrity("verify", "v1.0.0.0", "a", errors.New("hash")), 3},
		{"concurrency", snaperr.Concurrency("snapshot"), 4},
		{"unknown command", errors.New(`unknown command "frobnicate" for "snapsafe"`), 2},
		{"cancelled", context.Canceled, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArgsAreUserErrors(t *testing.T) {
	err := exactArgs(1)(diffCmd, []string{})
	if !snaperr.Is(err, snaperr.KindUser) {
		t.Errorf("expected user error, got %v", err)
	}
	err = rangeArgs(0, 1)(verifyCmd, []string{"a", "b"})
	if !snaperr.Is(err, snaperr.KindUser) {
		t.Errorf("expected user error, got %v", err)
	}
	if err := rangeArgs(1, 2)(diffCmd, []string{"a"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
