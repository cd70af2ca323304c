// Package spigot computes leading decimal digits of pi with a bounded
// spigot algorithm that emits four digits per step.
//
// The routine is purely arithmetic and has no dependency on the image
// pipeline. It runs as a single task on its own execution queue next to the
// convolution bands.
package spigot

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultGroups yields the first 800 digits.
	DefaultGroups = 200
	// DigitsPerGroup is the number of decimal digits in one group.
	DigitsPerGroup = 4
	// TermsPerGroup is how many series terms each emitted group consumes.
	TermsPerGroup = 14
	// MaxGroups bounds the scratch array allocated by Generate.
	MaxGroups = 10000

	base = 10000
	seed = 2000
)

var (
	ErrInvalidGroupCount  = errors.New("spigot: group count must be positive")
	ErrGroupCountTooLarge = errors.New("spigot: group count exceeds limit")
)

// Groups is an ordered sequence of base-10000 digit groups.
type Groups []int

// String renders the groups as one decimal string, each group zero-padded
// to four digits.
func (g Groups) String() string {
	var sb strings.Builder
	sb.Grow(len(g) * DigitsPerGroup)
	for _, v := range g {
		fmt.Fprintf(&sb, "%04d", v)
	}
	return sb.String()
}

// Digits returns the number of decimal digits represented.
func (g Groups) Digits() int {
	return len(g) * DigitsPerGroup
}

// Generate returns the first groups*4 decimal digits of pi.
func Generate(groups int) (Groups, error) {
	if groups <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupCount, groups)
	}
	if groups > MaxGroups {
		return nil, fmt.Errorf("%w: %d > %d", ErrGroupCountTooLarge, groups, MaxGroups)
	}

	m := groups * TermsPerGroup
	r := make([]int64, m+1)
	for i := 0; i < m; i++ {
		r[i] = seed
	}

	out := make(Groups, 0, groups)
	var carry int64
	for k := m; k > 0; k -= TermsPerGroup {
		var d int64
		i := k
		for {
			d += r[i] * base
			b := int64(2*i - 1)
			r[i] = d % b
			d /= b
			i--
			if i == 0 {
				break
			}
			d *= int64(i)
		}
		out = append(out, int(carry+d/base))
		carry = d % base
	}
	return out, nil
}
