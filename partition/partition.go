// Package partition divides an image's rows into halo-padded bands that can be
// convolved independently on separate execution queues.
//
// A Plan is computed once per run from the image height, the requested band
// count and an alignment quantum. Band heights are rounded down to the quantum
// so every band except the last lines up with the work-group granularity used
// by the convolution kernel.
package partition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultQuantum is the row multiple every non-final band is aligned to.
const DefaultQuantum = 32

// Sentinel errors for planning.
var (
	ErrEmptyImage           = errors.New("partition: image height must be positive")
	ErrUnsupportedBandCount = errors.New("partition: unsupported band count")
	ErrInvalidRatio         = errors.New("partition: invalid band ratio")
	ErrInvalidQuantum       = errors.New("partition: alignment quantum must be positive")
	ErrInvalidHalo          = errors.New("partition: halo must not be negative")
	ErrInvalidPlan          = errors.New("partition: plan violates coverage invariants")
)

// Ratio is the share of the remaining rows assigned to one band.
// It is applied as remaining / Den * Num so the integer division happens first.
type Ratio struct {
	Num int
	Den int
}

// DefaultRatios are the static split used in three-band mode: 4/9 of the
// image, then 3/5 of what is left, then the rest.
var DefaultRatios = []Ratio{{Num: 4, Den: 9}, {Num: 3, Den: 5}}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Validate checks that the ratio is a proper fraction in (0, 1].
func (r Ratio) Validate() error {
	if r.Den <= 0 || r.Num <= 0 || r.Num > r.Den {
		return fmt.Errorf("%w: %s", ErrInvalidRatio, r)
	}
	return nil
}

func (r Ratio) apply(rows int) int {
	return rows / r.Den * r.Num
}

// ParseRatios parses a comma separated list such as "4/9,3/5".
// An empty string yields an empty list.
func ParseRatios(s string) ([]Ratio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	ratios := make([]Ratio, 0, len(parts))
	for _, part := range parts {
		num, den, ok := strings.Cut(strings.TrimSpace(part), "/")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRatio, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRatio, part)
		}
		d, err := strconv.Atoi(strings.TrimSpace(den))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRatio, part)
		}
		r := Ratio{Num: n, Den: d}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		ratios = append(ratios, r)
	}
	return ratios, nil
}

// FormatRatios is the inverse of ParseRatios.
func FormatRatios(ratios []Ratio) string {
	parts := make([]string, len(ratios))
	for i, r := range ratios {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Band is a contiguous run of output rows together with the halo needed to
// read its filter footprint from the padded input.
type Band struct {
	// RowOffset is the first output row covered by the band.
	RowOffset int
	// Height is the number of output rows.
	Height int
	// Halo is the number of extra input rows read above and below.
	Halo int
	// Slot is the band's position in the ratio sequence. Zero-height bands
	// are omitted from a plan, so slots may skip values.
	Slot int
}

// End returns the first output row after the band.
func (b Band) End() int {
	return b.RowOffset + b.Height
}

// InputRows is the number of padded input rows the band reads.
func (b Band) InputRows() int {
	return b.Height + 2*b.Halo
}

func (b Band) String() string {
	return fmt.Sprintf("band %d rows [%d,%d) halo %d", b.Slot, b.RowOffset, b.End(), b.Halo)
}

// Plan is an ordered set of bands over an image of Height rows.
type Plan struct {
	Height int
	Bands  []Band
	// Dropped counts rows below the last alignment boundary that no band
	// covers. It is only non-zero when the planner runs with DropTail.
	Dropped int
}

// Covered returns the number of rows assigned to a band.
func (p Plan) Covered() int {
	total := 0
	for _, b := range p.Bands {
		total += b.Height
	}
	return total
}

// Validate checks that the bands are contiguous and non-empty, that every
// band except the last is a multiple of quantum, and that the covered and
// dropped rows add up to the image height.
func (p Plan) Validate(quantum int) error {
	if quantum <= 0 {
		return ErrInvalidQuantum
	}
	if len(p.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidPlan)
	}

	next := 0
	for i, b := range p.Bands {
		if b.Height <= 0 {
			return fmt.Errorf("%w: %s has no rows", ErrInvalidPlan, b)
		}
		if b.RowOffset != next {
			return fmt.Errorf("%w: %s starts at %d, want %d", ErrInvalidPlan, b, b.RowOffset, next)
		}
		if i < len(p.Bands)-1 && b.Height%quantum != 0 {
			return fmt.Errorf("%w: %s is not a multiple of %d", ErrInvalidPlan, b, quantum)
		}
		next = b.End()
	}

	if next+p.Dropped != p.Height {
		return fmt.Errorf("%w: covers %d rows and drops %d, image has %d",
			ErrInvalidPlan, next, p.Dropped, p.Height)
	}
	return nil
}

// Planner computes band plans. It holds no state between calls.
type Planner struct {
	Quantum int
	Ratios  []Ratio
	// DropTail rounds the final band down to the quantum as well, leaving
	// the leftover rows uncovered.
	DropTail bool
}

// NewPlanner validates its inputs and returns a Planner.
func NewPlanner(quantum int, ratios []Ratio, dropTail bool) (*Planner, error) {
	if quantum <= 0 {
		return nil, ErrInvalidQuantum
	}
	for _, r := range ratios {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &Planner{
		Quantum:  quantum,
		Ratios:   append([]Ratio(nil), ratios...),
		DropTail: dropTail,
	}, nil
}

// MaxBands is the band count of multi-band mode.
func (p *Planner) MaxBands() int {
	return len(p.Ratios) + 1
}

// Supports reports whether k is an accepted band count.
func (p *Planner) Supports(k int) bool {
	return k == 1 || k == p.MaxBands()
}

// Plan splits height rows into k bands, each carrying halo.
//
// k must be 1 or len(Ratios)+1. An image shorter than the quantum is never
// split: it gets a single band regardless of k.
func (p *Planner) Plan(height, k, halo int) (Plan, error) {
	if height <= 0 {
		return Plan{}, ErrEmptyImage
	}
	if halo < 0 {
		return Plan{}, ErrInvalidHalo
	}
	if !p.Supports(k) {
		return Plan{}, fmt.Errorf("%w: %d (want 1 or %d)", ErrUnsupportedBandCount, k, p.MaxBands())
	}

	if k == 1 || height < p.Quantum {
		return Plan{
			Height: height,
			Bands:  []Band{{RowOffset: 0, Height: height, Halo: halo, Slot: 0}},
		}, nil
	}

	heights := make([]int, k)
	remaining := height
	for i, r := range p.Ratios {
		heights[i] = alignDown(r.apply(remaining), p.Quantum)
		remaining -= heights[i]
	}

	dropped := 0
	last := remaining
	if p.DropTail {
		last = alignDown(remaining, p.Quantum)
		dropped = remaining - last
	}
	heights[k-1] = last

	plan := Plan{Height: height, Dropped: dropped, Bands: make([]Band, 0, k)}
	offset := 0
	for slot, h := range heights {
		if h == 0 {
			continue
		}
		plan.Bands = append(plan.Bands, Band{RowOffset: offset, Height: h, Halo: halo, Slot: slot})
		offset += h
	}
	return plan, nil
}

func alignDown(n, quantum int) int {
	return n / quantum * quantum
}
