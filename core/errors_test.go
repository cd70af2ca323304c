package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCLIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CLIError
		contains []string
	}{
		{
			name: "error with action",
			err: &CLIError{
				Code:    "TEST_CODE",
				Message: "Test message",
				Action:  "Take this action",
			},
			contains: []string{"Test message", "Take this action"},
		},
		{
			name: "error without action",
			err: &CLIError{
				Code:    "TEST_CODE",
				Message: "Test message only",
			},
			contains: []string{"Test message only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(errStr, s) {
					t.Errorf("CLIError.Error() = %q, expected to contain %q", errStr, s)
				}
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *CLIError
		code     string
		contains string
	}{
		{"usage", ErrUsage("go-blur", "Expected exactly one image file name"), ErrCodeUsage, "go-blur <imagefile>"},
		{"path separator", ErrPathSeparator("a/b.png"), ErrCodePathSeparator, "a/b.png"},
		{"invalid config", ErrInvalidConfig(EnvBandCount, "must be 1 or 3, got 2"), ErrCodeInvalidConfig, EnvBandCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, expected to contain %q", tt.err.Error(), tt.contains)
			}
			if tt.err.Action == "" {
				t.Error("Action is empty")
			}
		})
	}
}

func TestIsCLIError(t *testing.T) {
	direct := ErrPathSeparator(`a\b.png`)
	wrapped := fmt.Errorf("startup: %w", direct)

	tests := []struct {
		name     string
		err      error
		wantOK   bool
		wantCode string
	}{
		{"direct", direct, true, ErrCodePathSeparator},
		{"wrapped", wrapped, true, ErrCodePathSeparator},
		{"plain error", errors.New("boom"), false, ""},
		{"nil", nil, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IsCLIError(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("IsCLIError() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Code != tt.wantCode {
				t.Errorf("IsCLIError() code = %s, want %s", got.Code, tt.wantCode)
			}
			if code := GetErrorCode(tt.err); code != tt.wantCode {
				t.Errorf("GetErrorCode() = %q, want %q", code, tt.wantCode)
			}
		})
	}
}
