// Package filter generates the square convolution kernels applied by the
// blur pipeline.
//
// Weights are laid out [row][col][channel] so a kernel row can be walked in
// the same order as a row of interleaved pixels.
package filter

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// DefaultWidth is the blur kernel width used when none is configured.
const DefaultWidth = 44

var (
	ErrInvalidWidth    = errors.New("filter: width must be positive")
	ErrInvalidChannels = errors.New("filter: channel count must be positive")
	ErrUnknownKind     = errors.New("filter: unknown filter kind")
)

// Kind selects the coefficient generator.
type Kind int

const (
	// KindIdentity passes the centre pixel through unchanged.
	KindIdentity Kind = iota
	// KindBlur is a normalised Gaussian with sigma = width/3.
	KindBlur
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindBlur:
		return "blur"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "identity" or "blur", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity":
		return KindIdentity, nil
	case "blur", "gaussian":
		return KindBlur, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Filter is an immutable square kernel with one weight per channel.
type Filter struct {
	Kind     Kind
	Width    int
	Halo     int
	Channels int
	Weights  []float32
}

// At returns the weight at kernel row r, column c, channel ch.
func (f *Filter) At(r, c, ch int) float32 {
	return f.Weights[(r*f.Width+c)*f.Channels+ch]
}

// Row returns the Width*Channels weights of kernel row r.
func (f *Filter) Row(r int) []float32 {
	n := f.Width * f.Channels
	return f.Weights[r*n : (r+1)*n]
}

// ChannelSum returns the total weight applied to channel ch.
func (f *Filter) ChannelSum(ch int) float64 {
	var sum float64
	for i := ch; i < len(f.Weights); i += f.Channels {
		sum += float64(f.Weights[i])
	}
	return sum
}

// Generate builds a kernel of the given kind. Even widths are accepted; the
// centre tap then sits at (width/2, width/2).
func Generate(kind Kind, width, channels int) (*Filter, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	var plane []float64
	switch kind {
	case KindIdentity:
		plane = identityPlane(width)
	case KindBlur:
		plane = gaussianPlane(width)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	return &Filter{
		Kind:     kind,
		Width:    width,
		Halo:     width / 2,
		Channels: channels,
		Weights:  interleave(plane, channels),
	}, nil
}

func identityPlane(width int) []float64 {
	plane := make([]float64, width*width)
	centre := width / 2
	plane[centre*width+centre] = 1
	return plane
}

// gaussianPlane returns the width x width outer product of a 1D Gaussian,
// normalised to unit sum.
func gaussianPlane(width int) []float64 {
	sigma := float64(width) / 3
	centre := width / 2

	g := make([]float64, width)
	for i := range g {
		x := float64(i - centre)
		g[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
	}

	plane := make([]float64, width*width)
	for r := 0; r < width; r++ {
		vecmath.ScaleBlock(plane[r*width:(r+1)*width], g, g[r])
	}

	floats.Scale(1/floats.Sum(plane), plane)
	return plane
}

func interleave(plane []float64, channels int) []float32 {
	out := make([]float32, len(plane)*channels)
	for i, w := range plane {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = float32(w)
		}
	}
	return out
}
