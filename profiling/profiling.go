// Package profiling records when each workload of a run was submitted,
// joined and executed on its device.
//
// Host marks (submit, join) come from the recorder's clock. Device marks are
// the start and end reported by the queue that ran the workload. Recording
// never feeds back into scheduling.
package profiling

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/stat"
)

// Recorder receives timing marks for named workloads. Implementations must
// be safe for concurrent use.
type Recorder interface {
	MarkSubmit(name string)
	MarkJoin(name string)
	RecordDevice(name string, queue int, device string, start, end time.Time)
	Summary() Summary
}

// WorkloadTiming is everything recorded for one workload.
type WorkloadTiming struct {
	Name   string
	Queue  int
	Device string

	Submitted   time.Time
	Joined      time.Time
	DeviceStart time.Time
	DeviceEnd   time.Time
}

// Wall is the host time from submission to join.
func (w WorkloadTiming) Wall() time.Duration {
	if w.Submitted.IsZero() || w.Joined.IsZero() {
		return 0
	}
	return w.Joined.Sub(w.Submitted)
}

// DeviceElapsed is the time the device spent executing the workload.
func (w WorkloadTiming) DeviceElapsed() time.Duration {
	if w.DeviceStart.IsZero() || w.DeviceEnd.IsZero() {
		return 0
	}
	return w.DeviceEnd.Sub(w.DeviceStart)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (w WorkloadTiming) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", w.Name)
	enc.AddInt("queue", w.Queue)
	enc.AddString("device", w.Device)
	enc.AddDuration("wall", w.Wall())
	enc.AddDuration("device_time", w.DeviceElapsed())
	return nil
}

// Summary is a snapshot of a run's timings.
type Summary struct {
	RunID uuid.UUID
	// Workloads are in first-submission order.
	Workloads []WorkloadTiming
	// Span runs from the first submit to the last join.
	Span time.Duration
	// DeviceMean and DeviceStdDev describe device time across workloads.
	DeviceMean   time.Duration
	DeviceStdDev time.Duration
}

// Workload returns the timing recorded under name.
func (s Summary) Workload(name string) (WorkloadTiming, bool) {
	for _, w := range s.Workloads {
		if w.Name == name {
			return w, true
		}
	}
	return WorkloadTiming{}, false
}

// GroupSpan is the time from the first submit to the last join among
// workloads whose name starts with prefix.
func (s Summary) GroupSpan(prefix string) time.Duration {
	var matched []WorkloadTiming
	for _, w := range s.Workloads {
		if strings.HasPrefix(w.Name, prefix) {
			matched = append(matched, w)
		}
	}
	return span(matched)
}

func span(workloads []WorkloadTiming) time.Duration {
	var first, last time.Time
	for _, w := range workloads {
		if !w.Submitted.IsZero() && (first.IsZero() || w.Submitted.Before(first)) {
			first = w.Submitted
		}
		if w.Joined.After(last) {
			last = w.Joined
		}
	}
	if first.IsZero() || last.IsZero() || last.Before(first) {
		return 0
	}
	return last.Sub(first)
}

// Timeline is the in-memory Recorder.
type Timeline struct {
	id    uuid.UUID
	clock func() time.Time

	mu        sync.Mutex
	order     []string
	workloads map[string]*WorkloadTiming
}

// NewTimeline returns an empty Timeline with a fresh run id. A nil clock
// uses time.Now.
func NewTimeline(clock func() time.Time) *Timeline {
	if clock == nil {
		clock = time.Now
	}
	return &Timeline{
		id:        uuid.New(),
		clock:     clock,
		workloads: make(map[string]*WorkloadTiming),
	}
}

// RunID identifies the run being recorded.
func (t *Timeline) RunID() uuid.UUID {
	return t.id
}

// entry must be called with mu held.
func (t *Timeline) entry(name string) *WorkloadTiming {
	w, ok := t.workloads[name]
	if !ok {
		w = &WorkloadTiming{Name: name, Queue: -1}
		t.workloads[name] = w
		t.order = append(t.order, name)
	}
	return w
}

// MarkSubmit records the submit instant for name.
func (t *Timeline) MarkSubmit(name string) {
	now := t.clock()
	t.mu.Lock()
	t.entry(name).Submitted = now
	t.mu.Unlock()
}

// MarkJoin records the join instant for name.
func (t *Timeline) MarkJoin(name string) {
	now := t.clock()
	t.mu.Lock()
	t.entry(name).Joined = now
	t.mu.Unlock()
}

// RecordDevice stores the device-reported execution window for name.
func (t *Timeline) RecordDevice(name string, queue int, device string, start, end time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.entry(name)
	w.Queue = queue
	w.Device = device
	w.DeviceStart = start
	w.DeviceEnd = end
}

// Summary copies the current state.
func (t *Timeline) Summary() Summary {
	t.mu.Lock()
	workloads := make([]WorkloadTiming, len(t.order))
	for i, name := range t.order {
		workloads[i] = *t.workloads[name]
	}
	t.mu.Unlock()

	s := Summary{RunID: t.id, Workloads: workloads, Span: span(workloads)}

	var samples []float64
	for _, w := range workloads {
		if d := w.DeviceElapsed(); d > 0 {
			samples = append(samples, float64(d))
		}
	}
	switch len(samples) {
	case 0:
	case 1:
		s.DeviceMean = time.Duration(samples[0])
	default:
		mean, std := stat.MeanStdDev(samples, nil)
		s.DeviceMean = time.Duration(mean)
		s.DeviceStdDev = time.Duration(std)
	}
	return s
}

// Nop discards every mark.
type Nop struct{}

func (Nop) MarkSubmit(string) {}

func (Nop) MarkJoin(string) {}

func (Nop) RecordDevice(string, int, string, time.Time, time.Time) {}

func (Nop) Summary() Summary { return Summary{} }
