package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetEnvOrDefault(t *testing.T) {
	const testKey = "TEST_GET_ENV_OR_DEFAULT"

	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		want         string
	}{
		{"returns env value when set", "custom_value", "default", "custom_value"},
		{"returns default when empty", "", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			if got := GetEnvOrDefault(testKey, tt.defaultValue); got != tt.want {
				t.Errorf("GetEnvOrDefault() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	const testKey = "TEST_PARSE_INT_ENV"

	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"parses valid integer", "42", 0, 42},
		{"parses negative integer", "-10", 0, -10},
		{"trims spaces", " 8 ", 0, 8},
		{"returns default for invalid", "abc", 7, 7},
		{"returns default for float", "3.5", 7, 7},
		{"returns default when empty", "", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			if got := ParseIntEnv(testKey, tt.defaultValue); got != tt.want {
				t.Errorf("ParseIntEnv() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	const testKey = "TEST_PARSE_BOOL_ENV"

	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"on", false, true},
		{"false", true, false},
		{"Off", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			if got := ParseBoolEnv(testKey, tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestParseListEnv(t *testing.T) {
	const testKey = "TEST_PARSE_LIST_ENV"

	tests := []struct {
		name         string
		envValue     string
		defaultValue []string
		want         []string
	}{
		{"splits and trims", "gpu-a, gpu-b ,gpu-c", nil, []string{"gpu-a", "gpu-b", "gpu-c"}},
		{"drops empty items", "a,,b,", nil, []string{"a", "b"}},
		{"only separators uses default", " , ,", []string{"x"}, []string{"x"}},
		{"unset uses default", "", []string{"x"}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(testKey, tt.envValue)
			got := ParseListEnv(testKey, tt.defaultValue)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseListEnv() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
