package device

import (
	"fmt"
	"sync"
	"time"
)

// Task is one unit of work submitted to a queue.
type Task func() error

// Event tracks a submitted task. Its accessors are valid after Wait returns.
type Event struct {
	name  string
	queue int
	done  chan struct{}

	start time.Time
	end   time.Time
	err   error
}

func newEvent(name string, queue int) *Event {
	return &Event{name: name, queue: queue, done: make(chan struct{})}
}

func (e *Event) finish(start, end time.Time, err error) {
	e.start, e.end, e.err = start, end, err
	close(e.done)
}

// Wait blocks until the task has run (or been aborted) and returns its error.
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Done is closed when the task completes.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Name returns the workload name given at submission.
func (e *Event) Name() string { return e.name }

// Queue returns the index of the queue the task ran on.
func (e *Event) Queue() int { return e.queue }

// Start is the instant the queue began executing the task. It is zero for
// tasks that never ran.
func (e *Event) Start() time.Time { return e.start }

// End is the instant the task returned.
func (e *Event) End() time.Time { return e.end }

// Elapsed is End minus Start.
func (e *Event) Elapsed() time.Duration { return e.end.Sub(e.start) }

type job struct {
	task  Task
	event *Event
}

// Queue runs submitted tasks one at a time in submission order on a
// dedicated goroutine. Once a task fails, every task still pending or
// submitted later completes with ErrQueueAborted without running.
type Queue struct {
	index  int
	device Device
	clock  func() time.Time

	mu      sync.Mutex
	pending []job
	closed  bool
	failure error

	wake chan struct{}
	done chan struct{}
}

func newQueue(index int, dev Device, clock func() time.Time) *Queue {
	q := &Queue{
		index:  index,
		device: dev,
		clock:  clock,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Index returns the queue's position in its pool.
func (q *Queue) Index() int { return q.index }

// Device returns the device the queue is bound to.
func (q *Queue) Device() Device { return q.device }

// Submit enqueues task without blocking and returns its completion event.
func (q *Queue) Submit(name string, task Task) *Event {
	ev := newEvent(name, q.index)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		ev.finish(time.Time{}, time.Time{}, ErrQueueClosed)
		return ev
	}
	q.pending = append(q.pending, job{task: task, event: ev})
	q.mu.Unlock()

	q.signal()
	return ev
}

// Failure returns the first task error seen by the queue, if any.
func (q *Queue) Failure() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failure
}

// Close stops accepting work, waits for pending tasks to drain and stops the
// worker goroutine. Close is safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
	<-q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		j := q.pending[0]
		q.pending[0] = job{}
		q.pending = q.pending[1:]
		failure := q.failure
		q.mu.Unlock()

		if failure != nil {
			j.event.finish(time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrQueueAborted, failure))
			continue
		}

		start := q.clock()
		err := call(j.task)
		end := q.clock()

		if err != nil {
			q.mu.Lock()
			q.failure = err
			q.mu.Unlock()
		}
		j.event.finish(start, end, err)
	}
}

// call runs task, converting a panic into ErrTaskPanicked.
func call(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task()
}
