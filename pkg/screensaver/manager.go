package screensaver

import (
	"fmt"
	"sync"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

// Manager is the process-wide handle to one rotation.
//
// Every method takes the lock for the duration of the call only and performs no I/O while
// holding it. A *Manager is meant to be constructed once and shared; all holders see the same
// rotation.
//
// If an operation panics the lock is released, the panic is logged and propagated to the
// caller that triggered it, and the Manager keeps serving later calls from whatever state
// remains. The next Replace or Clear re-establishes a known-good rotation.
type Manager struct {
	mu       sync.Mutex
	state    *State
	poisoned bool

	logger  observability.StructuredLogger
	metrics *Metrics
}

type ManagerOption func(*managerConfig)

type managerConfig struct {
	logger  observability.StructuredLogger
	rng     Randomness
	metrics *Metrics
}

func WithLogger(logger observability.StructuredLogger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithRandomness injects the ordering source, typically NewRandomness(seed) in tests.
func WithRandomness(rng Randomness) ManagerOption {
	return func(c *managerConfig) {
		c.rng = rng
	}
}

func WithMetrics(metrics *Metrics) ManagerOption {
	return func(c *managerConfig) {
		c.metrics = metrics
	}
}

// NewManager returns an empty rotation.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := managerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Manager{
		state:   NewState(cfg.rng),
		logger:  observability.OrNoOp(cfg.logger).WithField("component", "screensaver"),
		metrics: cfg.metrics,
	}
}

func (m *Manager) Current() (img Image, ok bool) {
	m.withState("current", func(s *State) {
		img, ok = s.Current()
	})
	return img, ok
}

func (m *Manager) Len() (n int) {
	m.withState("len", func(s *State) {
		n = s.Len()
	})
	return n
}

func (m *Manager) Resolve(name string) (result ResolveState) {
	m.withState("resolve", func(s *State) {
		result = s.Resolve(name)
	})
	m.metrics.resolved(result)
	return result
}

func (m *Manager) Insert(img Image) (err error) {
	m.withState("insert", func(s *State) {
		err = s.Insert(img)
	})
	return err
}

func (m *Manager) InsertMany(images map[string]Image) (err error) {
	m.withState("insert_many", func(s *State) {
		err = s.InsertMany(images)
	})
	return err
}

func (m *Manager) Rename(oldName, newName string) (err error) {
	m.withState("rename", func(s *State) {
		err = s.Rename(oldName, newName)
	})
	return err
}

func (m *Manager) Delete(name string) (err error) {
	m.withState("delete", func(s *State) {
		err = s.Delete(name)
	})
	return err
}

func (m *Manager) Clear() {
	m.withState("clear", func(s *State) {
		s.Clear()
		m.poisoned = false
	})
}

func (m *Manager) Replace(images map[string]Image) {
	m.withState("replace", func(s *State) {
		s.Replace(images)
		m.poisoned = false
	})
}

// withState runs fn under the lock. Logging happens after the lock is released.
func (m *Manager) withState(op string, fn func(*State)) {
	m.mu.Lock()
	poisoned := m.poisoned
	wrapsBefore := m.state.Wraps()
	panicked := true

	defer func() {
		if panicked {
			m.poisoned = true
		} else {
			m.metrics.observe(m.state.Len(), m.state.Wraps()-wrapsBefore)
		}
		m.mu.Unlock()

		if poisoned {
			m.logger.Debug("accessing screensaver state after a recovered panic", map[string]any{"op": op})
		}
		if panicked {
			r := recover()
			m.logger.Error("screensaver operation panicked", map[string]any{
				"op":    op,
				"panic": fmt.Sprint(r),
			})
			m.metrics.recoveredPanic()
			panic(r)
		}
	}()

	fn(m.state)
	panicked = false
}
