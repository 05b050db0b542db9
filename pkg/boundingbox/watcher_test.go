package boundingbox

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordTarget counts applications so write-once semantics are observable.
type recordTarget struct {
	mu      sync.Mutex
	applied int
	box     Box
}

func (r *recordTarget) ApplyBoundingBox(b Box) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied++
	r.box = b
}

func (r *recordTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

type fakeOwner bool

func (f fakeOwner) Running() bool { return bool(f) }

// pollCounter counts checks via the Observer hook.
type pollCounter struct {
	mu     sync.Mutex
	polls  int
	parses int
}

func (p *pollCounter) Poll() {
	p.mu.Lock()
	p.polls++
	p.mu.Unlock()
}

func (p *pollCounter) Applied() {}

func (p *pollCounter) ParseFailure() {
	p.mu.Lock()
	p.parses++
	p.mu.Unlock()
}

func (p *pollCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

const validArtifact = "1\n2\n3\n4\n5\n6\n7\n8\n9\n"

func writeArtifact(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ArtifactName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// joinWithin fails the test if Join does not return in time.
func joinWithin(t *testing.T, w *Watcher, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		w.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Join() did not return in time")
	}
}

func TestWatcherAppliesArtifactWrittenAfterStart(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     50 * time.Millisecond,
		Owner:        fakeOwner(true),
	})
	w.Start()

	// Let at least one poll miss before the artifact exists.
	time.Sleep(75 * time.Millisecond)
	writeArtifact(t, dir, validArtifact)

	// The loop must exit on its own after applying, no stop needed.
	joinWithin(t, w, 2*time.Second)

	if !w.Applied() {
		t.Fatal("watcher did not apply the artifact")
	}
	if err := w.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	if target.count() != 1 {
		t.Errorf("target applied %d times, want 1", target.count())
	}
	want := Box{Translation: Vec3{1, 2, 3}, Rotation: Vec3{4, 5, 6}, Scale: Vec3{7, 8, 9}}
	if target.box != want {
		t.Errorf("applied box = %+v, want %+v", target.box, want)
	}
}

func TestWatcherIgnoresStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}
	writeArtifact(t, dir, validArtifact)

	// Make sure the baseline lands after the artifact's mtime.
	time.Sleep(50 * time.Millisecond)

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     30 * time.Millisecond,
		Owner:        fakeOwner(true),
	})
	w.Start()

	time.Sleep(100 * time.Millisecond)
	if target.count() != 0 {
		t.Fatal("stale artifact must not be applied")
	}

	// A fresh write is picked up by a later poll.
	writeArtifact(t, dir, validArtifact)
	time.Sleep(100 * time.Millisecond)

	w.RequestStop()
	joinWithin(t, w, 2*time.Second)

	if !w.Applied() {
		t.Fatal("fresh artifact was not applied")
	}
	if target.count() != 1 {
		t.Errorf("target applied %d times, want 1", target.count())
	}
}

func TestCheckOnceAcceptsPreexistingArtifact(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}
	writeArtifact(t, dir, validArtifact)
	time.Sleep(20 * time.Millisecond)

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		CheckOnce:    true,
		Owner:        fakeOwner(true),
	})
	w.Start()
	joinWithin(t, w, 2*time.Second)

	if !w.Applied() {
		t.Fatal("single-shot mode must accept a pre-existing artifact")
	}
}

func TestCheckOnceMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		CheckOnce:    true,
		Owner:        fakeOwner(true),
	})
	w.Start()
	joinWithin(t, w, 2*time.Second)

	if w.Applied() {
		t.Fatal("nothing to apply, Applied() must be false")
	}
	if err := w.Err(); err != nil {
		t.Fatalf("missing artifact is not an error, got %v", err)
	}
}

func TestRequestStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}
	counter := &pollCounter{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     time.Hour,
		Owner:        fakeOwner(true),
		Observer:     counter,
	})
	w.Start()
	time.Sleep(20 * time.Millisecond)

	w.RequestStop()
	w.RequestStop()
	joinWithin(t, w, 2*time.Second)
	w.RequestStop() // after exit, still safe

	// One initial check plus exactly one final check.
	if got := counter.count(); got != 2 {
		t.Errorf("poll count = %d, want 2", got)
	}
}

func TestStopDuringWaitRunsFinalCheck(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     time.Hour,
		Owner:        fakeOwner(true),
	})
	w.Start()
	time.Sleep(20 * time.Millisecond)

	// The artifact shows up while the loop is mid-wait; the mandatory
	// final check after the stop request must still pick it up.
	writeArtifact(t, dir, validArtifact)
	w.RequestStop()
	joinWithin(t, w, 2*time.Second)

	if !w.Applied() {
		t.Fatal("final check did not apply the late artifact")
	}
	if target.count() != 1 {
		t.Errorf("target applied %d times, want 1", target.count())
	}
}

func TestOwnerGoneSkipsFinalCheck(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}
	counter := &pollCounter{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     time.Hour,
		Owner:        fakeOwner(false),
		Observer:     counter,
	})
	w.Start()
	time.Sleep(20 * time.Millisecond)

	writeArtifact(t, dir, validArtifact)
	w.RequestStop()
	joinWithin(t, w, 2*time.Second)

	if w.Applied() {
		t.Fatal("final check must be skipped when the owner is gone")
	}
	if got := counter.count(); got != 1 {
		t.Errorf("poll count = %d, want 1 (initial check only)", got)
	}
}

func TestMalformedArtifactRecordsParseError(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		Interval:     time.Hour,
		Owner:        fakeOwner(true),
	})
	w.Start()
	time.Sleep(20 * time.Millisecond)

	// Written after the baseline, so the final check parses it (with one
	// stability retry) and records the failure.
	writeArtifact(t, dir, "1\n2\n3\n4\n5\n6\n7\n8\n")
	w.RequestStop()
	joinWithin(t, w, 2*time.Second)

	var perr *ParseError
	if !errors.As(w.Err(), &perr) {
		t.Fatalf("Err() = %v, want *ParseError", w.Err())
	}
	if w.Applied() {
		t.Fatal("malformed artifact must not be applied")
	}
	if target.count() != 0 {
		t.Errorf("target mutated %d times, want 0", target.count())
	}
}

func TestUnreadableArtifactIsNotRecorded(t *testing.T) {
	dir := t.TempDir()
	target := &recordTarget{}

	// A directory at the artifact path passes the stat but fails the read
	// with an I/O error, the same shape as a file deleted between the stat
	// and the open. That is "not ready", not a parse error, and must not
	// end up in last-error state.
	if err := os.Mkdir(filepath.Join(dir, ArtifactName), 0755); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       target,
		CheckOnce:    true,
		Owner:        fakeOwner(true),
	})
	w.Start()
	joinWithin(t, w, 2*time.Second)

	if err := w.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil for an unreadable artifact", err)
	}
	if w.Applied() || target.count() != 0 {
		t.Error("unreadable artifact must not be applied")
	}
}

func TestJoinReturnsWithoutArtifact(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher(Config{
		ArtifactPath: filepath.Join(dir, ArtifactName),
		Target:       &recordTarget{},
		Interval:     50 * time.Millisecond,
		Owner:        fakeOwner(true),
	})
	w.Start()
	time.Sleep(120 * time.Millisecond)
	w.RequestStop()
	joinWithin(t, w, 2*time.Second)
}
