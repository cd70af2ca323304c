package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go-blur/convolve"
	"go-blur/device"
	"go-blur/filter"
	"go-blur/imaging"
	"go-blur/logging"
	"go-blur/partition"
	"go-blur/profiling"
	"go-blur/spigot"
)

const testFilterWidth = 5

// paddedImage builds a padded single-channel image with deterministic noise.
func paddedImage(w, h, halo int) *imaging.Image {
	img := &imaging.Image{Width: w, Height: h, Channels: 1, Halo: halo}
	img.Pix = make([]float32, img.Stride()*img.PaddedHeight())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, 0, float32((x*37+y*11)%251))
		}
	}
	img.PadEdges()
	return img
}

func newPool(t *testing.T, names ...string) *device.Pool {
	t.Helper()
	pool := device.NewPoolFromDevices(device.StaticFromNames(names).Devices, nil)
	t.Cleanup(pool.Close)
	return pool
}

func newJob(t *testing.T, w, h, bands int) Job {
	t.Helper()
	f, err := filter.Generate(filter.KindBlur, testFilterWidth, 1)
	require.NoError(t, err)

	planner, err := partition.NewPlanner(partition.DefaultQuantum, partition.DefaultRatios, false)
	require.NoError(t, err)
	plan, err := planner.Plan(h, bands, f.Halo)
	require.NoError(t, err)

	out, err := imaging.Allocate(w, h, 1)
	require.NoError(t, err)

	return Job{
		Input:       paddedImage(w, h, f.Halo),
		Output:      out,
		Filter:      f,
		Plan:        plan,
		DigitGroups: 2,
		Kernel:      convolve.DefaultOptions(),
	}
}

func TestQueueMapping(t *testing.T) {
	tests := []struct {
		name   string
		queues int
		digits int
		bands  []int // queue for slots 0, 1, 2
	}{
		{"single queue", 1, 0, []int{0, 0, 0}},
		{"two queues", 2, 1, []int{0, 0, 0}},
		{"three queues", 3, 1, []int{0, 2, 0}},
		{"four queues", 4, 1, []int{0, 2, 3}},
		{"eight queues", 8, 1, []int{0, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DigitQueue(tt.queues); got != tt.digits {
				t.Errorf("DigitQueue(%d) = %d, want %d", tt.queues, got, tt.digits)
			}
			for slot, want := range tt.bands {
				if got := BandQueue(slot, tt.queues); got != want {
					t.Errorf("BandQueue(%d, %d) = %d, want %d", slot, tt.queues, got, want)
				}
			}
		})
	}
}

func TestBandWorkload(t *testing.T) {
	if got := BandWorkload(2); got != "band-2" {
		t.Errorf("BandWorkload(2) = %q, want %q", got, "band-2")
	}
}

func TestRun_FourQueues(t *testing.T) {
	pool := newPool(t, "gpu-a", "gpu-b", "gpu-c", "gpu-d")
	timeline := profiling.NewTimeline(nil)
	job := newJob(t, 24, 100, 3)

	result, err := New(pool, timeline, nil).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "31415926", result.Digits.String())

	type placement struct {
		Workload string
		Queue    int
		Device   string
	}
	var got []placement
	for _, a := range result.Assignments {
		got = append(got, placement{a.Workload, a.Queue, a.Device.Name})
	}
	want := []placement{
		{"band-0", 0, "gpu-a"},
		{"digits", 1, "gpu-b"},
		{"band-1", 2, "gpu-c"},
		{"band-2", 3, "gpu-d"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("assignments mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, result.Assignments[1].Band)
	require.NotNil(t, result.Assignments[3].Band)
	assert.Equal(t, 36, result.Assignments[3].Band.Height)

	summary := timeline.Summary()
	require.Len(t, summary.Workloads, 4)
	for _, w := range summary.Workloads {
		assert.False(t, w.Submitted.IsZero(), "%s not submitted", w.Name)
		assert.False(t, w.Joined.IsZero(), "%s not joined", w.Name)
		assert.False(t, w.DeviceStart.IsZero(), "%s has no device start", w.Name)
	}
}

func TestRun_MultiBandMatchesSingleBand(t *testing.T) {
	multi := newJob(t, 24, 100, 3)
	_, err := New(newPool(t, "gpu-a", "gpu-b", "gpu-c", "gpu-d"), nil, nil).Run(context.Background(), multi)
	require.NoError(t, err)

	single := newJob(t, 24, 100, 1)
	_, err = New(newPool(t), nil, nil).Run(context.Background(), single)
	require.NoError(t, err)

	if diff := cmp.Diff(single.Output.Pix, multi.Output.Pix); diff != "" {
		t.Errorf("3-band output differs from 1-band output (-single +multi):\n%s", diff)
	}
}

func TestRun_ZeroDevicesFallsBack(t *testing.T) {
	fallback := device.NewPool(context.Background(), &device.Static{}, nil)
	defer fallback.Close()
	require.True(t, fallback.IsFallback())

	job := newJob(t, 24, 100, 3)
	result, err := New(fallback, nil, nil).Run(context.Background(), job)
	require.NoError(t, err)
	for _, a := range result.Assignments {
		assert.Equal(t, 0, a.Queue, "%s", a.Workload)
	}

	reference := newJob(t, 24, 100, 3)
	_, err = New(newPool(t, "gpu-a", "gpu-b", "gpu-c", "gpu-d"), nil, nil).Run(context.Background(), reference)
	require.NoError(t, err)

	if diff := cmp.Diff(reference.Output.Pix, job.Output.Pix); diff != "" {
		t.Errorf("fallback output differs (-multi +fallback):\n%s", diff)
	}
}

func TestRun_SkipsDigitsWhenZeroGroups(t *testing.T) {
	job := newJob(t, 24, 100, 3)
	job.DigitGroups = 0

	result, err := New(newPool(t, "a", "b", "c", "d"), nil, nil).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, result.Digits)
	assert.Len(t, result.Assignments, 3)
}

func TestRun_FailureDrainsEveryWorkload(t *testing.T) {
	errKernel := errors.New("out of device memory")
	job := newJob(t, 24, 512, 3) // bands of 224, 160 and 128 rows

	o := New(newPool(t, "a", "b", "c", "d"), nil, nil)
	var ran atomic.Int32
	o.kernel = func(in, out imaging.View, f *filter.Filter, opts convolve.Options) error {
		ran.Add(1)
		if out.Rows() == 160 {
			return errKernel
		}
		return convolve.Band(in, out, f, opts)
	}

	timeline := profiling.NewTimeline(nil)
	o.recorder = timeline

	_, err := o.Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkloadFailed)
	assert.ErrorIs(t, err, errKernel)
	assert.Contains(t, err.Error(), "band-1")

	assert.Equal(t, int32(3), ran.Load(), "every band on its own queue still runs")
	for _, w := range timeline.Summary().Workloads {
		assert.False(t, w.Joined.IsZero(), "%s was not joined", w.Name)
	}
}

func TestRun_SharedQueueReportsRootCause(t *testing.T) {
	errKernel := errors.New("kernel launch failed")
	job := newJob(t, 24, 512, 3)

	o := New(newPool(t), nil, nil)
	var ran atomic.Int32
	o.kernel = func(in, out imaging.View, f *filter.Filter, opts convolve.Options) error {
		ran.Add(1)
		return errKernel
	}
	var digitsRan atomic.Bool
	o.digits = func(groups int) (spigot.Groups, error) {
		digitsRan.Store(true)
		return spigot.Generate(groups)
	}

	_, err := o.Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, errKernel)
	assert.NotErrorIs(t, err, device.ErrQueueAborted)
	assert.Equal(t, int32(1), ran.Load(), "later tasks on the failed queue are aborted")
	assert.False(t, digitsRan.Load())
}

func TestRun_PanicBecomesError(t *testing.T) {
	job := newJob(t, 24, 100, 3)

	o := New(newPool(t, "a", "b", "c", "d"), nil, nil)
	o.digits = func(int) (spigot.Groups, error) {
		panic("index out of range")
	}

	_, err := o.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrWorkloadFailed)
	assert.ErrorIs(t, err, device.ErrTaskPanicked)
}

func TestRun_CancelledBeforeSubmission(t *testing.T) {
	job := newJob(t, 24, 100, 3)

	o := New(newPool(t), nil, nil)
	var ran atomic.Int32
	o.kernel = func(imaging.View, imaging.View, *filter.Filter, convolve.Options) error {
		ran.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran.Load())
}

func TestRun_InvalidJobs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j *Job)
		wantErr error
	}{
		{"missing filter", func(j *Job) { j.Filter = nil }, ErrInvalidJob},
		{"no bands", func(j *Job) { j.Plan.Bands = nil }, ErrNoBands},
		{"halo mismatch", func(j *Job) {
			f, _ := filter.Generate(filter.KindBlur, 9, 1)
			j.Filter = f
		}, ErrHaloMismatch},
		{"output size", func(j *Job) {
			out, _ := imaging.Allocate(j.Input.Width+1, j.Input.Height, 1)
			j.Output = out
		}, ErrShapeMismatch},
		{"plan height", func(j *Job) { j.Plan.Height++ }, ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := newJob(t, 24, 100, 3)
			tt.mutate(&job)

			_, err := New(newPool(t), nil, nil).Run(context.Background(), job)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_WarnsAboutDroppedRows(t *testing.T) {
	f, err := filter.Generate(filter.KindIdentity, testFilterWidth, 1)
	require.NoError(t, err)
	planner, err := partition.NewPlanner(partition.DefaultQuantum, partition.DefaultRatios, true)
	require.NoError(t, err)
	plan, err := planner.Plan(100, 3, f.Halo)
	require.NoError(t, err)
	require.Equal(t, 4, plan.Dropped)

	in := paddedImage(8, 100, f.Halo)
	out, err := imaging.Allocate(8, 100, 1)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	o := New(newPool(t, "a", "b", "c", "d"), nil, logging.FromZap(zap.New(core)))

	_, err = o.Run(context.Background(), Job{Input: in, Output: out, Filter: f, Plan: plan, Kernel: convolve.DefaultOptions()})
	require.NoError(t, err)

	warns := logs.FilterMessage("rows not covered by any band are left unblurred").All()
	require.Len(t, warns, 1)
	assert.Equal(t, int64(4), warns[0].ContextMap()["dropped_rows"])

	// The identity filter copies covered rows; the dropped tail stays zero.
	assert.Equal(t, in.At(3, 95, 0), out.At(3, 95, 0))
	assert.Zero(t, out.At(3, 96, 0))
	assert.Zero(t, out.At(3, 99, 0))
}
