// Package convolve applies a filter to one band of a halo-padded image.
//
// Band is a pure function of its views and the filter. It writes only to the
// output view, so bands with disjoint output rows can run concurrently without
// synchronisation. Within a band the rows are split into work groups that run
// on a bounded set of goroutines; each group writes disjoint rows and owns its
// accumulator, so the result does not depend on scheduling.
package convolve

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"go-blur/filter"
	"go-blur/imaging"
)

const (
	// DefaultWorkGroupRows matches the (1, 8) local range of the device kernel.
	DefaultWorkGroupRows = 8
	// DefaultMaxChannels bounds the per-pixel accumulator.
	DefaultMaxChannels = 64
)

var (
	ErrTooManyChannels = errors.New("convolve: channel count exceeds limit")
	ErrChannelMismatch = errors.New("convolve: channel counts differ")
	ErrShapeMismatch   = errors.New("convolve: input view does not cover the filter footprint")
)

// Options control how a band is split into work groups.
type Options struct {
	// WorkGroupRows is the number of output rows per work group.
	WorkGroupRows int
	// Parallelism caps concurrently running work groups. Zero uses GOMAXPROCS.
	Parallelism int
	// MaxChannels rejects images with more channels. Zero uses DefaultMaxChannels.
	MaxChannels int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		WorkGroupRows: DefaultWorkGroupRows,
		Parallelism:   runtime.GOMAXPROCS(0),
		MaxChannels:   DefaultMaxChannels,
	}
}

func (o Options) withDefaults() Options {
	if o.WorkGroupRows <= 0 {
		o.WorkGroupRows = DefaultWorkGroupRows
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.GOMAXPROCS(0)
	}
	if o.MaxChannels <= 0 {
		o.MaxChannels = DefaultMaxChannels
	}
	return o
}

// Check validates that in, out and f can be convolved together.
func Check(in, out imaging.View, f *filter.Filter, opts Options) error {
	opts = opts.withDefaults()

	c := out.Channels()
	if c > opts.MaxChannels {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChannels, c, opts.MaxChannels)
	}
	if in.Channels() != c || f.Channels != c {
		return fmt.Errorf("%w: input %d, output %d, filter %d",
			ErrChannelMismatch, in.Channels(), c, f.Channels)
	}
	if in.Rows() < out.Rows()+f.Width-1 || in.Width() < out.Width()+f.Width-1 {
		return fmt.Errorf("%w: input %dx%d, output %dx%d, filter width %d",
			ErrShapeMismatch, in.Width(), in.Rows(), out.Width(), out.Rows(), f.Width)
	}
	return nil
}

// Band computes
//
//	out[y][x][ch] = sum over r, c < f.Width of in[y+r][x+c][ch] * f[r][c][ch]
//
// for every pixel of out. Row 0 of in must be the first halo row above the
// band, so out (0, 0) reads its centre tap at in (Halo, Halo).
func Band(in, out imaging.View, f *filter.Filter, opts Options) error {
	opts = opts.withDefaults()
	if err := Check(in, out, f, opts); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for start := 0; start < out.Rows(); start += opts.WorkGroupRows {
		end := min(start+opts.WorkGroupRows, out.Rows())
		g.Go(func() error {
			acc := make([]float32, out.Channels())
			for y := start; y < end; y++ {
				convolveRow(in, out, f, y, acc)
			}
			return nil
		})
	}
	return g.Wait()
}

// convolveRow fills output row y. The accumulation order is r, then c, then
// channel, for every pixel.
func convolveRow(in, out imaging.View, f *filter.Filter, y int, acc []float32) {
	channels := out.Channels()
	dst := out.Row(y)

	for x := 0; x < out.Width(); x++ {
		clear(acc)
		for r := 0; r < f.Width; r++ {
			src := in.Row(y + r)[x*channels:]
			weights := f.Row(r)
			for c := 0; c < f.Width; c++ {
				base := c * channels
				for ch := 0; ch < channels; ch++ {
					acc[ch] += src[base+ch] * weights[base+ch]
				}
			}
		}
		copy(dst[x*channels:(x+1)*channels], acc)
	}
}
