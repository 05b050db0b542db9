package boundingbox

import (
	"github.com/meshpipe/meshpipe/pkg/logging"
)

// Monitor guards one node execution with a bounding box watcher. The watcher
// starts strictly before the wrapped operation and is stopped and joined
// after it finishes, on every exit path. When the node supplies the bounding
// box manually no watcher exists at all.
type Monitor struct {
	watcher *Watcher
	log     *logging.Logger
}

// NewMonitor builds the guard. manual reflects the node's "use manual
// bounding box" setting: when true the external estimation is not expected
// to produce anything and the subsystem stays entirely out of the way.
func NewMonitor(cfg Config, manual bool) *Monitor {
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	m := &Monitor{log: log}
	if !manual {
		m.watcher = NewWatcher(cfg)
	}
	return m
}

// Run executes op under the guard. The returned error is op's own error;
// a parse error found during teardown is logged and left inspectable via
// WatcherErr, never substituted for op's result.
func (m *Monitor) Run(op func() error) error {
	if m.watcher == nil {
		return op()
	}

	m.watcher.Start()
	defer func() {
		m.watcher.RequestStop()
		m.watcher.Join()
		if err := m.watcher.Err(); err != nil {
			m.log.Error("Bounding box watcher finished with error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return op()
}

// Applied reports whether the watcher wrote a bounding box. Always false
// when the box is manual. Valid after Run has returned.
func (m *Monitor) Applied() bool {
	if m.watcher == nil {
		return false
	}
	return m.watcher.Applied()
}

// WatcherErr returns the watcher's last parse error, or nil. Valid after
// Run has returned.
func (m *Monitor) WatcherErr() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Err()
}
