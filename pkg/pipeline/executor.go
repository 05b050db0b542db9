package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/meshpipe/meshpipe/pkg/boundingbox"
	"github.com/meshpipe/meshpipe/pkg/desc"
	"github.com/meshpipe/meshpipe/pkg/logging"
	"github.com/meshpipe/meshpipe/pkg/metrics"
)

// Executor runs node chunks by invoking their external binaries.
type Executor struct {
	// BinDir, when set, resolves relative program names. Otherwise PATH
	// lookup applies.
	BinDir string
	// Interval overrides the bounding box poll interval. Zero keeps the
	// default.
	Interval time.Duration
	Log      *logging.Logger
	Metrics  *metrics.PipelineMetrics

	mu    sync.RWMutex
	board map[string]*ExecutionStatus
}

// NewExecutor creates an executor.
func NewExecutor(binDir string, log *logging.Logger, m *metrics.PipelineMetrics) *Executor {
	if log == nil {
		log = logging.Discard()
	}
	return &Executor{
		BinDir:  binDir,
		Log:     log,
		Metrics: m,
		board:   make(map[string]*ExecutionStatus),
	}
}

// ExecuteNode runs every chunk of a node sequentially. totalSize is the work
// range for chunked nodes; nodes without a parallelization block always run
// as a single full-range chunk.
func (e *Executor) ExecuteNode(ctx context.Context, n *NodeInstance, totalSize int) error {
	if err := os.MkdirAll(n.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create node directory: %w", err)
	}

	for i, r := range splitRanges(n.Desc.Parallelization, totalSize) {
		if err := e.executeChunk(ctx, n, i, r.start, r.size); err != nil {
			return err
		}
	}
	return nil
}

type chunkRange struct {
	start, size int
}

func splitRanges(p *desc.Parallelization, totalSize int) []chunkRange {
	if p == nil || p.BlockSize <= 0 || totalSize <= 0 {
		return []chunkRange{{0, totalSize}}
	}
	var ranges []chunkRange
	for start := 0; start < totalSize; start += p.BlockSize {
		size := p.BlockSize
		if start+size > totalSize {
			size = totalSize - start
		}
		ranges = append(ranges, chunkRange{start, size})
	}
	return ranges
}

func (e *Executor) executeChunk(ctx context.Context, n *NodeInstance, index, rangeStart, rangeSize int) error {
	key := fmt.Sprintf("%s/%s/%d", n.Desc.Name, n.UID(), index)
	status := &ExecutionStatus{Status: StatusNone}
	e.mu.Lock()
	e.board[key] = status
	e.mu.Unlock()

	e.setStatus(status, StatusSubmitted)

	argv, err := desc.ExpandCommandLine(n.Desc, n.Params, n.Env(rangeStart, rangeSize))
	if err != nil {
		e.setStatus(status, StatusError)
		return err
	}
	if e.BinDir != "" && !filepath.IsAbs(argv[0]) {
		argv[0] = filepath.Join(e.BinDir, argv[0])
	}
	e.withLock(func() { status.CommandLine = strings.Join(argv, " ") })

	logPath := filepath.Join(n.Dir(), fmt.Sprintf("log.%d", index))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		e.setStatus(status, StatusError)
		return fmt.Errorf("failed to open chunk log: %w", err)
	}
	defer logFile.Close()

	e.Log.Info("Executing chunk", map[string]interface{}{
		"node":  n.Desc.Name,
		"chunk": index,
		"log":   logPath,
	})

	start := time.Now()
	op := func() error {
		return e.runCommand(ctx, argv, logFile, status)
	}

	if n.Watchable() {
		outPath, perr := n.PrimaryOutput()
		if perr != nil {
			e.setStatus(status, StatusError)
			return perr
		}
		cfg := boundingbox.Config{
			ArtifactPath: boundingbox.ArtifactPath(outPath),
			Target:       n.Params,
			Interval:     e.Interval,
			Log:          e.Log,
		}
		if e.Metrics != nil {
			cfg.Observer = e.Metrics.Watcher()
		}
		mon := boundingbox.NewMonitor(cfg, n.UseManualBoundingBox())
		err = mon.Run(op)
		e.withLock(func() { status.BBoxApplied = mon.Applied() })
	} else {
		err = op()
	}

	if e.Metrics != nil {
		e.mu.RLock()
		final := string(status.Status)
		e.mu.RUnlock()
		e.Metrics.ChunkFinished(n.Desc.Name, final, time.Since(start).Seconds())
	}
	return err
}

// runCommand spawns the external binary in its own process group, streams
// its output to the chunk log and classifies the exit.
func (e *Executor) runCommand(ctx context.Context, argv []string, logFile *os.File, status *ExecutionStatus) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	e.withLock(func() { status.StartTime = time.Now() })

	if err := cmd.Start(); err != nil {
		e.setStatus(status, StatusError)
		e.withLock(func() { status.EndTime = time.Now() })
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	e.setStatus(status, StatusRunning)

	err := cmd.Wait()
	e.withLock(func() { status.EndTime = time.Now() })

	if err == nil {
		e.setStatus(status, StatusSuccess)
		return nil
	}

	if ctx.Err() != nil {
		e.setStatus(status, StatusStopped)
		return fmt.Errorf("chunk cancelled: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok && ws.Signaled() {
			e.setStatus(status, StatusKilled)
			return fmt.Errorf("%s killed by signal %s", argv[0], ws.Signal())
		}
		e.withLock(func() { status.ReturnCode = exitErr.ExitCode() })
		e.setStatus(status, StatusError)
		return fmt.Errorf("%s exited with code %d", argv[0], exitErr.ExitCode())
	}

	e.setStatus(status, StatusError)
	return fmt.Errorf("%s failed: %w", argv[0], err)
}

func (e *Executor) setStatus(status *ExecutionStatus, to ChunkStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := status.transition(to); err != nil {
		// Transition table bugs should be loud in logs, not fatal.
		e.Log.Error("Invalid chunk status transition", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (e *Executor) withLock(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Board returns a snapshot of all chunk statuses keyed by
// nodeType/uid/chunkIndex.
func (e *Executor) Board() map[string]ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]ExecutionStatus, len(e.board))
	for k, v := range e.board {
		out[k] = *v
	}
	return out
}
