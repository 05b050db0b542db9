package boundingbox

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/meshpipe/meshpipe/pkg/liveness"
	"github.com/meshpipe/meshpipe/pkg/logging"
	"github.com/meshpipe/meshpipe/pkg/retry"
)

// DefaultInterval is the wait duration between artifact checks.
const DefaultInterval = 5 * time.Second

// The external producer does not publish the artifact atomically, so a read
// can catch it mid-write. A failed parse is retried once after a short delay
// before it counts as a parse error.
var parseRetry = retry.Config{
	MaxRetries:     1,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     100 * time.Millisecond,
	Multiplier:     1.0,
}

// Target is the mutable parameter state the watcher writes into. The
// implementation must publish the nine values and the validity flag so that
// a reader never observes the flag true with partial values.
type Target interface {
	ApplyBoundingBox(Box)
}

// Observer receives watcher events. Used to feed metrics; may be nil.
type Observer interface {
	Poll()
	Applied()
	ParseFailure()
}

// Config configures a Watcher.
type Config struct {
	// ArtifactPath is the file the external estimation writes.
	ArtifactPath string
	// Target receives the parsed box exactly once.
	Target Target
	// Interval between checks. Defaults to DefaultInterval.
	Interval time.Duration
	// CheckOnce performs a single check and accepts pre-existing artifacts
	// regardless of age. No loop, no stop signal needed.
	CheckOnce bool
	// Owner is the process the watcher belongs to. If it has died by the
	// time a stop is requested, the final check is skipped. Defaults to the
	// current process.
	Owner liveness.Check
	// Log may be nil.
	Log *logging.Logger
	// Observer may be nil.
	Observer Observer
}

// Watcher polls for the bounding box artifact in the background and folds it
// into the node's parameter state when it appears.
//
// Lifecycle: NewWatcher -> Start -> (RequestStop) -> Join. Start must be
// called once; Join blocks until the loop has fully exited. RequestStop is
// idempotent and ends the loop after at most one more check.
type Watcher struct {
	cfg      Config
	baseline time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	applied bool
	lastErr error
}

// NewWatcher creates a watcher. It does not touch the filesystem until Start.
func NewWatcher(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Owner == nil {
		cfg.Owner = liveness.Self()
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	return &Watcher{
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the background poll loop. In continuous mode the start time
// becomes the staleness baseline: artifacts written before it are ignored.
func (w *Watcher) Start() {
	if !w.cfg.CheckOnce {
		w.baseline = time.Now()
	}
	go w.run()
}

// RequestStop signals the loop to end after at most one more check. Safe to
// call multiple times and after the loop has already exited.
func (w *Watcher) RequestStop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

// Join blocks until the loop has fully exited.
func (w *Watcher) Join() {
	<-w.done
}

// Applied reports whether the artifact was parsed and written into the
// target. Stable once Join has returned.
func (w *Watcher) Applied() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// Err returns the last parse error the loop encountered, or nil. A missing
// or stale artifact is not an error. Stable once Join has returned.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		if w.check() || w.cfg.CheckOnce {
			return
		}

		select {
		case <-w.stop:
			// Try to pick up a result that appeared just as teardown
			// began, unless the owning process is already gone.
			if w.cfg.Owner.Running() {
				w.check()
			}
			return
		case <-time.After(w.cfg.Interval):
		}
	}
}

// check performs one poll: artifact present and fresh, parse, apply.
// Returns true only when the box was applied.
func (w *Watcher) check() bool {
	if w.cfg.Observer != nil {
		w.cfg.Observer.Poll()
	}

	info, err := os.Stat(w.cfg.ArtifactPath)
	if err != nil {
		// Not ready yet.
		return false
	}
	if !w.baseline.IsZero() && info.ModTime().Before(w.baseline) {
		// Stale artifact from a previous run.
		return false
	}

	var box Box
	err = retry.Do(context.Background(), parseRetry, func() error {
		b, perr := ParseFile(w.cfg.ArtifactPath)
		if perr != nil {
			return perr
		}
		box = b
		return nil
	})
	if err != nil {
		// The artifact can vanish between the stat and the open; that is
		// the same "not ready" case as a missing file, not an error worth
		// recording. Only a genuinely malformed artifact is.
		var perr *ParseError
		if !errors.As(err, &perr) {
			return false
		}
		w.setErr(err)
		if w.cfg.Observer != nil {
			w.cfg.Observer.ParseFailure()
		}
		w.cfg.Log.Warn("Bounding box artifact unreadable", map[string]interface{}{
			"path":  w.cfg.ArtifactPath,
			"error": err.Error(),
		})
		return false
	}

	w.cfg.Target.ApplyBoundingBox(box)
	w.setApplied()
	if w.cfg.Observer != nil {
		w.cfg.Observer.Applied()
	}
	w.cfg.Log.Info("Bounding box loaded", map[string]interface{}{
		"path": w.cfg.ArtifactPath,
	})
	return true
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastErr = err
}

func (w *Watcher) setApplied() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applied = true
	w.lastErr = nil
}
