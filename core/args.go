package core

import (
	"strings"
)

// OutputPrefix is prepended to the input name to form the output name.
const OutputPrefix = "blurred_"

// HistoryFlag lists recorded runs instead of blurring an image.
const HistoryFlag = "--history"

// Args is the parsed command line.
type Args struct {
	// ImageFile is the input name. Empty when History is set.
	ImageFile string
	History   bool
}

// ParseArgs parses the arguments after the program name. It accepts exactly
// one image file name, or the history flag on its own. HistoryFlag is the
// only reserved word: any other argument, including one starting with a
// dash, is a file name.
func ParseArgs(program string, args []string) (Args, error) {
	if len(args) != 1 {
		return Args{}, ErrUsage(program, "Expected exactly one image file name")
	}
	if args[0] == HistoryFlag {
		return Args{History: true}, nil
	}
	if err := ValidateFileName(args[0]); err != nil {
		return Args{}, err
	}
	return Args{ImageFile: args[0]}, nil
}

// ValidateFileName rejects names that contain a path separator of either
// platform, so the output is always written next to the input in the
// working directory.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrUsage("go-blur", "Image file name is empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrPathSeparator(name)
	}
	return nil
}

// OutputFileName returns the name the blurred image is written to.
func OutputFileName(input string) string {
	return OutputPrefix + input
}
