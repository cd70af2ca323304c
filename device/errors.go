// Package device discovers compute devices and exposes one ordered execution
// queue per device.
package device

import "errors"

// Sentinel errors for device operations.
var (
	// Discovery errors
	ErrDiscoveryFailed = errors.New("device: discovery failed")
	ErrNoDevices       = errors.New("device: no devices found")

	// Queue errors
	ErrQueueClosed  = errors.New("device: queue is closed")
	ErrQueueAborted = errors.New("device: queue aborted after earlier failure")
	ErrTaskPanicked = errors.New("device: task panicked")
)
