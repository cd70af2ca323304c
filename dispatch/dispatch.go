// Package dispatch runs one blur job: it submits every band and the digit
// workload to the device pool, waits for all of them and reports timings.
//
// Bands write disjoint rows of the output image, so there is no merge step;
// when Run returns nil the output is complete. On failure every submitted
// workload is still drained before Run returns, and the output must be
// discarded.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-blur/convolve"
	"go-blur/device"
	"go-blur/filter"
	"go-blur/imaging"
	"go-blur/logging"
	"go-blur/partition"
	"go-blur/profiling"
	"go-blur/spigot"
)

// DigitsWorkload names the pi digit workload.
const DigitsWorkload = "digits"

// BandPrefix starts every band workload name.
const BandPrefix = "band-"

var (
	ErrWorkloadFailed = errors.New("dispatch: workload failed")
	ErrNoBands        = errors.New("dispatch: plan has no bands")
	ErrHaloMismatch   = errors.New("dispatch: input halo does not match filter")
	ErrShapeMismatch  = errors.New("dispatch: input and output images differ")
	ErrInvalidJob     = errors.New("dispatch: job is incomplete")
)

// BandWorkload names the band in slot.
func BandWorkload(slot int) string {
	return fmt.Sprintf("%s%d", BandPrefix, slot)
}

// DigitQueue is the queue index the digit workload runs on: the second
// queue when there is one, else the first.
func DigitQueue(queues int) int {
	if queues > 1 {
		return 1
	}
	return 0
}

// BandQueue is the queue index for the band in slot. Slot 0 shares nothing
// with the digits; later slots skip past the digit queue. Indices beyond
// the pool fall back to queue 0.
func BandQueue(slot, queues int) int {
	if slot == 0 {
		return 0
	}
	if q := slot + 1; q < queues {
		return q
	}
	return 0
}

// Job is one image to blur.
type Job struct {
	// Input must be padded with the filter's halo.
	Input *imaging.Image
	// Output has the input's size and channels and no halo.
	Output *imaging.Image
	Filter *filter.Filter
	Plan   partition.Plan
	// DigitGroups is the number of 4-digit pi groups to compute alongside
	// the bands. Zero skips the digit workload.
	DigitGroups int
	Kernel      convolve.Options
}

// Assignment records where a workload ran.
type Assignment struct {
	Workload string
	Queue    int
	Device   device.Device
	// Band is nil for the digit workload.
	Band *partition.Band
}

// Result is the outcome of a successful Run.
type Result struct {
	Digits      spigot.Groups
	Assignments []Assignment
}

type kernelFunc func(in, out imaging.View, f *filter.Filter, opts convolve.Options) error

type digitsFunc func(groups int) (spigot.Groups, error)

// Orchestrator submits jobs to a fixed pool.
type Orchestrator struct {
	pool     *device.Pool
	recorder profiling.Recorder
	logger   *logging.Logger

	kernel kernelFunc
	digits digitsFunc
}

// New returns an Orchestrator. A nil recorder or logger discards output.
func New(pool *device.Pool, recorder profiling.Recorder, logger *logging.Logger) *Orchestrator {
	if recorder == nil {
		recorder = profiling.Nop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		pool:     pool,
		recorder: recorder,
		logger:   logger.Named("dispatch"),
		kernel:   convolve.Band,
		digits:   spigot.Generate,
	}
}

// workload is a task ready for submission.
type workload struct {
	name  string
	queue *device.Queue
	band  *partition.Band
	task  device.Task
	event *device.Event
}

// Run blurs job.Input into job.Output and computes the digits. ctx is only
// checked before each submission; work already on a queue runs to
// completion.
func (o *Orchestrator) Run(ctx context.Context, job Job) (Result, error) {
	if err := o.validate(job); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if job.Plan.Dropped > 0 {
		o.logger.Warn("rows not covered by any band are left unblurred",
			zap.Int("dropped_rows", job.Plan.Dropped),
			zap.Int("height", job.Plan.Height),
		)
	}

	bands, err := o.bandWorkloads(job)
	if err != nil {
		return Result{}, err
	}

	var digits spigot.Groups
	ordered := bands[:1:1]
	if job.DigitGroups > 0 {
		ordered = append(ordered, &workload{
			name:  DigitsWorkload,
			queue: o.pool.Pick(DigitQueue(o.pool.Len())),
			task: func() error {
				g, err := o.digits(job.DigitGroups)
				if err != nil {
					return err
				}
				digits = g
				return nil
			},
		})
	}
	ordered = append(ordered, bands[1:]...)

	submitted, submitErr := o.submit(ctx, ordered)
	joinErr := o.join(submitted)

	if joinErr != nil {
		return Result{}, joinErr
	}
	if submitErr != nil {
		return Result{}, submitErr
	}

	result := Result{Digits: digits, Assignments: make([]Assignment, len(submitted))}
	for i, w := range submitted {
		result.Assignments[i] = Assignment{
			Workload: w.name,
			Queue:    w.queue.Index(),
			Device:   w.queue.Device(),
			Band:     w.band,
		}
	}
	return result, nil
}

func (o *Orchestrator) validate(job Job) error {
	if job.Input == nil || job.Output == nil || job.Filter == nil {
		return ErrInvalidJob
	}
	if len(job.Plan.Bands) == 0 {
		return ErrNoBands
	}
	if job.Input.Halo != job.Filter.Halo {
		return fmt.Errorf("%w: image halo %d, filter halo %d", ErrHaloMismatch, job.Input.Halo, job.Filter.Halo)
	}
	in, out := job.Input, job.Output
	if in.Width != out.Width || in.Height != out.Height || in.Channels != out.Channels || out.Halo != 0 {
		return fmt.Errorf("%w: input %dx%dx%d, output %dx%dx%d halo %d",
			ErrShapeMismatch, in.Width, in.Height, in.Channels, out.Width, out.Height, out.Channels, out.Halo)
	}
	if job.Plan.Height != in.Height {
		return fmt.Errorf("%w: plan covers %d rows, image has %d", ErrShapeMismatch, job.Plan.Height, in.Height)
	}
	return nil
}

// bandWorkloads builds and checks every band's views before anything is
// submitted, so a bad plan never leaves work running.
func (o *Orchestrator) bandWorkloads(job Job) ([]*workload, error) {
	out := make([]*workload, len(job.Plan.Bands))
	for i := range job.Plan.Bands {
		band := job.Plan.Bands[i]

		// Padded row RowOffset is image row RowOffset-halo.
		inView, err := job.Input.Rows(band.RowOffset, band.InputRows())
		if err != nil {
			return nil, fmt.Errorf("%s input view: %w", band, err)
		}
		outView, err := job.Output.Rows(band.RowOffset, band.Height)
		if err != nil {
			return nil, fmt.Errorf("%s output view: %w", band, err)
		}
		if err := convolve.Check(inView, outView, job.Filter, job.Kernel); err != nil {
			return nil, fmt.Errorf("%s: %w", band, err)
		}

		f, opts := job.Filter, job.Kernel
		out[i] = &workload{
			name:  BandWorkload(band.Slot),
			queue: o.pool.Pick(BandQueue(band.Slot, o.pool.Len())),
			band:  &band,
			task: func() error {
				return o.kernel(inView, outView, f, opts)
			},
		}
	}
	return out, nil
}

func (o *Orchestrator) submit(ctx context.Context, ordered []*workload) ([]*workload, error) {
	submitted := make([]*workload, 0, len(ordered))
	for _, w := range ordered {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run cancelled before all workloads were submitted",
				zap.Int("submitted", len(submitted)),
				zap.Int("total", len(ordered)),
			)
			return submitted, err
		}

		o.recorder.MarkSubmit(w.name)
		w.event = w.queue.Submit(w.name, w.task)
		submitted = append(submitted, w)

		if w.band != nil {
			o.logger.Debug("band submitted",
				logging.BandFields(w.band.Slot, w.band.RowOffset, w.band.Height, w.queue.Index())...)
		} else {
			o.logger.Debug("workload submitted", zap.String("workload", w.name), zap.Int("queue", w.queue.Index()))
		}
	}
	return submitted, nil
}

// join waits for every submitted workload and returns the first real
// failure. Aborts caused by an earlier failure on the same queue are only
// reported when nothing else failed.
func (o *Orchestrator) join(submitted []*workload) error {
	errs := make([]error, len(submitted))

	var g errgroup.Group
	for i, w := range submitted {
		g.Go(func() error {
			err := w.event.Wait()
			o.recorder.MarkJoin(w.name)
			if !w.event.Start().IsZero() {
				o.recorder.RecordDevice(w.name, w.queue.Index(), w.queue.Device().Name, w.event.Start(), w.event.End())
			}

			fields := append([]zap.Field{zap.String("workload", w.name), zap.Int("queue", w.queue.Index())},
				logging.TimingFields(w.event.Start(), w.event.End())...)
			if err != nil {
				o.logger.Error("workload failed", append(fields, zap.Error(err))...)
				errs[i] = fmt.Errorf("%s: %w", w.name, err)
				return errs[i]
			}
			o.logger.Debug("workload joined", fields...)
			return nil
		})
	}
	first := g.Wait()
	if first == nil {
		return nil
	}

	for _, err := range errs {
		if err != nil && !errors.Is(err, device.ErrQueueAborted) {
			return fmt.Errorf("%w: %w", ErrWorkloadFailed, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrWorkloadFailed, first)
}
