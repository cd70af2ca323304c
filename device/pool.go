package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-blur/logging"
)

// Pool is the fixed set of execution queues for a run, one per device.
// It is immutable after construction and safe for concurrent use.
//
// This organism composes:
//   - Discoverer (device enumeration, with host fallback)
//   - Queue (ordered per-device execution)
//
// Public API:
//   - NewPool(): discover devices and start one queue each
//   - Pick(): select a queue by index, falling back to queue 0
//   - Close(): drain and stop every queue
type Pool struct {
	queues []*Queue

	closeOnce sync.Once
}

// NewPool discovers devices and starts one queue per device. Discovery
// failures and empty results are logged and replaced by a single host
// queue; they are never returned to the caller.
func NewPool(ctx context.Context, d Discoverer, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}

	var devices []Device
	if d != nil {
		found, err := d.Discover(ctx)
		switch {
		case err != nil:
			logger.Warn("device discovery failed, using host queue", zap.Error(err))
		case len(found) == 0:
			logger.Info("no devices discovered, using host queue")
		default:
			devices = found
		}
	}

	pool := NewPoolFromDevices(devices, time.Now)
	for _, q := range pool.queues {
		logger.Info("execution queue ready", logging.DeviceFields(q.Index(), q.Device().Name, q.Device().Type.String())...)
	}
	return pool
}

// NewPoolFromDevices starts one queue per device, or a single host queue
// when devices is empty. A nil clock uses time.Now.
func NewPoolFromDevices(devices []Device, clock func() time.Time) *Pool {
	if clock == nil {
		clock = time.Now
	}
	if len(devices) == 0 {
		devices = []Device{HostDevice()}
	}

	queues := make([]*Queue, len(devices))
	for i, dev := range devices {
		queues[i] = newQueue(i, dev, clock)
	}
	return &Pool{queues: queues}
}

// Len returns the number of queues. It is always at least one.
func (p *Pool) Len() int {
	return len(p.queues)
}

// Queue returns queue i, or nil if i is out of range.
func (p *Pool) Queue(i int) *Queue {
	if i < 0 || i >= len(p.queues) {
		return nil
	}
	return p.queues[i]
}

// Pick returns queue i when it exists and queue 0 otherwise.
func (p *Pool) Pick(i int) *Queue {
	if q := p.Queue(i); q != nil {
		return q
	}
	return p.queues[0]
}

// Devices returns the devices backing each queue, in queue order.
func (p *Pool) Devices() []Device {
	out := make([]Device, len(p.queues))
	for i, q := range p.queues {
		out[i] = q.Device()
	}
	return out
}

// IsFallback reports whether the pool runs on the single host queue.
func (p *Pool) IsFallback() bool {
	return len(p.queues) == 1 && p.queues[0].Device().Type == TypeHost
}

// Close drains and stops every queue. It is safe to call multiple times.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, q := range p.queues {
			q.Close()
		}
	})
}
