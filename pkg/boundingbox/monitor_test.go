package boundingbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMonitorManualBoxCreatesNoWatcher(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	// A perfectly valid artifact exists, but the manual box wins: the
	// subsystem must leave the parameters entirely untouched.
	writeArtifact(t, dir, validArtifact)

	m := NewMonitor(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     10 * time.Millisecond,
		Owner:        fakeOwner(true),
	}, true)

	ran := false
	err := m.Run(func() error {
		ran = true
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Fatal("wrapped operation did not run")
	}
	if m.Applied() || target.count() != 0 {
		t.Error("manual box: parameters must not be touched")
	}
}

func TestMonitorAppliesWhileOpRuns(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	m := NewMonitor(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     20 * time.Millisecond,
		Owner:        fakeOwner(true),
	}, false)

	err := m.Run(func() error {
		time.Sleep(30 * time.Millisecond)
		writeArtifact(t, dir, validArtifact)
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Teardown is complete once Run returns, so the result is visible.
	if !m.Applied() {
		t.Fatal("bounding box not applied")
	}
	if target.count() != 1 {
		t.Errorf("target applied %d times, want 1", target.count())
	}
}

func TestMonitorReturnsOpErrorVerbatim(t *testing.T) {
	dir := t.TempDir()
	opErr := errors.New("meshing failed")

	m := NewMonitor(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       &recordTarget{},
		Interval:     10 * time.Millisecond,
		Owner:        fakeOwner(true),
	}, false)

	start := time.Now()
	err := m.Run(func() error { return opErr })
	if !errors.Is(err, opErr) {
		t.Fatalf("Run() error = %v, want op error", err)
	}
	// The watcher must have been stopped and joined, not abandoned.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("teardown took %v, watcher not stopped promptly", elapsed)
	}
}

func TestMonitorTeardownParseErrorIsDiagnostic(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	m := NewMonitor(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     time.Hour,
		Owner:        fakeOwner(true),
	}, false)

	err := m.Run(func() error {
		time.Sleep(20 * time.Millisecond)
		// Malformed artifact lands during execution; the final check
		// sees it at teardown.
		path := filepath.Join(dir, ArtifactName)
		return os.WriteFile(path, []byte("not\na\nbox\n"), 0644)
	})
	if err != nil {
		t.Fatalf("Run() error = %v, op succeeded so the guard must too", err)
	}

	var perr *ParseError
	if !errors.As(m.WatcherErr(), &perr) {
		t.Fatalf("WatcherErr() = %v, want *ParseError", m.WatcherErr())
	}
	if target.count() != 0 {
		t.Error("malformed artifact must not mutate the parameters")
	}
}
