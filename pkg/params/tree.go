package params

import (
	"fmt"
	"sync"

	"github.com/meshpipe/meshpipe/pkg/boundingbox"
	"github.com/meshpipe/meshpipe/pkg/desc"
)

// Paths of the nine bounding box leaves, in artifact order.
var boundingBoxPaths = [9]string{
	"boundingBox.bboxTranslation.x",
	"boundingBox.bboxTranslation.y",
	"boundingBox.bboxTranslation.z",
	"boundingBox.bboxRotation.x",
	"boundingBox.bboxRotation.y",
	"boundingBox.bboxRotation.z",
	"boundingBox.bboxScale.x",
	"boundingBox.bboxScale.y",
	"boundingBox.bboxScale.z",
}

// Tree is the instantiated, mutable parameter state of a node. Values are
// keyed by dotted attribute path and seeded from descriptor defaults.
//
// During a monitored execution the bounding box watcher is the only writer;
// it writes at most once via ApplyBoundingBox. Other mutation happens before
// execution starts (user overrides) or after teardown.
type Tree struct {
	mu        sync.RWMutex
	values    map[string]any
	bboxValid bool
}

// NewTree seeds a tree from a node descriptor's inputs.
func NewTree(n *desc.Node) *Tree {
	t := &Tree{values: make(map[string]any)}
	for i := range n.Inputs {
		seed(t.values, "", &n.Inputs[i])
	}
	return t
}

func seed(values map[string]any, prefix string, a *desc.Attribute) {
	path := a.Name
	if prefix != "" {
		path = prefix + "." + a.Name
	}
	if a.IsGroup() {
		for i := range a.Group {
			seed(values, path, &a.Group[i])
		}
		return
	}
	values[path] = a.Value
}

// Lookup resolves a dotted path. Implements desc.ValueSource.
func (t *Tree) Lookup(path string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[path]
	return v, ok
}

// Set overwrites a value. Unknown paths are rejected so user overrides
// cannot silently invent parameters.
func (t *Tree) Set(path string, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[path]; !ok {
		return fmt.Errorf("unknown parameter %q", path)
	}
	t.values[path] = v
	return nil
}

// Float returns a float value, tolerating int-typed YAML defaults.
func (t *Tree) Float(path string) float64 {
	v, _ := t.Lookup(path)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Bool returns a bool value, false when unset or mistyped.
func (t *Tree) Bool(path string) bool {
	v, _ := t.Lookup(path)
	b, _ := v.(bool)
	return b
}

// String returns a string value, empty when unset or mistyped.
func (t *Tree) String(path string) string {
	v, _ := t.Lookup(path)
	s, _ := v.(string)
	return s
}

// ApplyBoundingBox bulk-writes the nine bounding box values and raises the
// validity flag inside one critical section, so no reader can see the flag
// true with partial values. Implements boundingbox.Target.
func (t *Tree) ApplyBoundingBox(box boundingbox.Box) {
	values := box.Values()
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, path := range boundingBoxPaths {
		t.values[path] = values[i]
	}
	t.bboxValid = true
}

// BoundingBox returns the current nine bounding box values.
func (t *Tree) BoundingBox() boundingbox.Box {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var v [9]float64
	for i, path := range boundingBoxPaths {
		switch n := t.values[path].(type) {
		case float64:
			v[i] = n
		case int:
			v[i] = float64(n)
		}
	}
	return boundingbox.FromValues(v)
}

// BoundingBoxValid reports whether an automatic bounding box was accepted.
func (t *Tree) BoundingBoxValid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bboxValid
}

// Snapshot returns a copy of all values, for status reporting.
func (t *Tree) Snapshot() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}
