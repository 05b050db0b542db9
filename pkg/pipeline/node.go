package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/meshpipe/meshpipe/pkg/desc"
	"github.com/meshpipe/meshpipe/pkg/params"
)

// NodeInstance binds a node descriptor to an instantiated parameter tree and
// a cache location.
type NodeInstance struct {
	Desc     *desc.Node
	Params   *params.Tree
	CacheDir string

	uid string
}

// NewNodeInstance instantiates a descriptor with default parameter values.
func NewNodeInstance(d *desc.Node, cacheDir string) *NodeInstance {
	return &NodeInstance{
		Desc:     d,
		Params:   params.NewTree(d),
		CacheDir: cacheDir,
	}
}

// UID derives a stable identifier from the node type and its parameter
// values, so reruns with identical inputs land in the same cache directory.
// The identity is frozen on first use: values written later by the bounding
// box watcher do not re-key the cache.
func (n *NodeInstance) UID() string {
	if n.uid != "" {
		return n.uid
	}
	snapshot := n.Params.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha1.New()
	fmt.Fprintf(h, "%s\n", n.Desc.Name)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\n", k, snapshot[k])
	}
	n.uid = hex.EncodeToString(h.Sum(nil))[:16]
	return n.uid
}

// Dir returns the node's cache directory: <cache>/<nodeType>/<uid>.
func (n *NodeInstance) Dir() string {
	return filepath.Join(n.CacheDir, n.Desc.Name, n.UID())
}

// Env builds the template substitution context for one chunk.
func (n *NodeInstance) Env(rangeStart, rangeSize int) desc.Env {
	return desc.Env{
		CacheDir:   n.CacheDir,
		NodeType:   n.Desc.Name,
		UID:        n.UID(),
		RangeStart: rangeStart,
		RangeSize:  rangeSize,
	}
}

// PrimaryOutput expands the node's first declared output path. The bounding
// box artifact is published next to it.
func (n *NodeInstance) PrimaryOutput() (string, error) {
	if len(n.Desc.Outputs) == 0 {
		return "", fmt.Errorf("node %s declares no outputs", n.Desc.Name)
	}
	tmpl, ok := n.Desc.Outputs[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("node %s primary output has no path template", n.Desc.Name)
	}
	return desc.ExpandPath(tmpl, n.Params, n.Env(0, 0))
}

// Watchable reports whether this node participates in the bounding box
// handshake: it declares the bounding box group, the manual-box switch and
// a primary output for the artifact location.
func (n *NodeInstance) Watchable() bool {
	return n.Desc.Input("boundingBox") != nil &&
		n.Desc.Input("useBoundingBox") != nil &&
		len(n.Desc.Outputs) > 0
}

// UseManualBoundingBox reports the node's manual-box switch. When true the
// watcher subsystem stays entirely out of the way.
func (n *NodeInstance) UseManualBoundingBox() bool {
	return n.Params.Bool("useBoundingBox")
}
