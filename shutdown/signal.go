package shutdown

import "sync/atomic"

// SignalCounter counts SIGINT/SIGTERM deliveries. Once the count reaches
// forceAfter, every further signal calls onForce.
//
// A blur cannot be interrupted once its bands are submitted, so the first
// signal only stops work that has not started; the second one forces the
// process out.
type SignalCounter struct {
	count      atomic.Int64
	forceAfter int
	onForce    func()
}

// NewSignalCounter returns a counter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Increment records one signal and returns the new count. onForce runs on
// the calling goroutine, without any lock held.
func (s *SignalCounter) Increment() int {
	n := int(s.count.Add(1))
	if n >= s.forceAfter && s.onForce != nil {
		s.onForce()
	}
	return n
}

// Count returns the number of signals seen.
func (s *SignalCounter) Count() int {
	return int(s.count.Load())
}
