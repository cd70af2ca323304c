package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go-blur/core"
	"go-blur/logging"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 30 * time.Second

// Manager coordinates signal handling and ordered cleanup for one
// invocation.
//
// This organism composes:
//   - Registry: ordered cleanup functions
//   - SignalCounter: first signal cancels, second forces exit
//
// Usage:
//
//	manager := NewManager(logger)
//	manager.Start()
//	manager.Register("queues", PriorityQueues, closeQueues)
//
//	code := run(manager.Context())
//	manager.Shutdown()
//	return manager.ExitCode(code)
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration
	exit    func(int)

	mu       sync.Mutex
	started  bool
	shutdown bool
	received os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the cleanup timeout. Default is DefaultTimeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a Manager. A nil logger discards shutdown logging.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("received second signal, forcing exit")
		m.exit(m.ExitCode(core.ExitCodeRuntime))
	})
	return m
}

// Context is cancelled by the first SIGINT or SIGTERM.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priorities run first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start begins listening for SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handle(sig)
		}
	}()
}

func (m *Manager) handle(sig os.Signal) {
	m.mu.Lock()
	if m.received == nil {
		m.received = sig
	}
	m.mu.Unlock()

	if m.signals.Increment() == 1 {
		m.logger.Info("received shutdown signal, no further work will be submitted",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Received returns the first signal caught, or nil.
func (m *Manager) Received() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// ExitCode returns the conventional signal exit code when a signal was
// caught, and code otherwise.
func (m *Manager) ExitCode(code int) int {
	switch m.Received() {
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return code
	}
}

// Shutdown stops signal handling and runs the registered cleanup functions
// within the timeout. It returns an error summarising failed steps, and nil
// on later calls.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	defer m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	startTime := time.Now()
	m.logger.Debug("running cleanup", zap.Strings("handlers", m.registry.Names()))

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Warn("cleanup step failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}

	m.logger.Debug("cleanup completed", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
