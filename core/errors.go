package core

import (
	"errors"
	"fmt"
)

// CLIError is a usage or configuration error with an actionable instruction.
// main maps every CLIError to ExitCodeUsage.
type CLIError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *CLIError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for CLI errors
const (
	ErrCodeUsage         = "USAGE"
	ErrCodePathSeparator = "PATH_SEPARATOR"
	ErrCodeInvalidConfig = "INVALID_CONFIG"
)

// ErrUsage returns an error for a malformed command line.
func ErrUsage(program, reason string) *CLIError {
	return &CLIError{
		Code:    ErrCodeUsage,
		Message: reason,
		Action:  fmt.Sprintf("Usage: %s <imagefile> (or %s --history)", program, program),
	}
}

// ErrPathSeparator returns an error for an image name that contains a
// directory separator.
func ErrPathSeparator(name string) *CLIError {
	return &CLIError{
		Code:    ErrCodePathSeparator,
		Message: fmt.Sprintf("Image file name %q must not contain '/' or '\\'", name),
		Action:  "Run from the directory that holds the image and pass its bare file name",
	}
}

// ErrInvalidConfig returns an error for a configuration value out of range.
func ErrInvalidConfig(key, reason string) *CLIError {
	return &CLIError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("Invalid %s: %s", key, reason),
		Action:  fmt.Sprintf("Fix %s in the environment, .env or the file named by %s", key, EnvConfigFile),
	}
}

// IsCLIError reports whether err is or wraps a CLIError and returns it.
func IsCLIError(err error) (*CLIError, bool) {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a CLIError
func GetErrorCode(err error) string {
	if cliErr, ok := IsCLIError(err); ok {
		return cliErr.Code
	}
	return ""
}
