package scene

import (
	"errors"
	"log/slog"
	"sync"

	"AddonLoader/pkg/addon"
	"AddonLoader/pkg/logger"
)

// Tree owns the root node and the ready ordering of everything below it.
type Tree struct {
	mu      sync.Mutex
	root    *Node
	running bool
	log     *slog.Logger
}

// NewTree creates a tree whose root node is called "root".
func NewTree() *Tree {
	t := &Tree{root: NewNode("root"), log: logger.Named("scene")}
	t.root.setTree(t)
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Start readies every node, children before parents.
func (t *Tree) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()
	t.root.propagateReady()
}

// Running reports whether Start was called and Stop was not.
func (t *Tree) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Stop runs the exit callbacks of every node.
func (t *Tree) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()
	t.root.exitTree()
}

// Host returns a SceneHost that attaches addons under parent. A nil parent
// means the root.
func (t *Tree) Host(parent *Node) *Host {
	if parent == nil {
		parent = t.root
	}
	return &Host{tree: t, parent: parent}
}

// Host attaches addon objects below a fixed parent node.
type Host struct {
	tree   *Tree
	parent *Node
}

var _ addon.SceneHost = (*Host)(nil)

// Parent returns the node addons are attached to.
func (h *Host) Parent() *Node {
	return h.parent
}

// AttachChild implements addon.SceneHost. Name clashes are resolved with a
// legible unique name. With forceReady and a running tree the new subtree is
// readied before AttachChild returns.
func (h *Host) AttachChild(obj addon.Object, forceReady bool) error {
	if obj == nil {
		return errors.New("addon object cannot be nil")
	}
	node := Wrap(obj)
	requested := node.Name()
	if err := h.parent.AddChild(node, true); err != nil {
		return err
	}
	if node.Name() != requested {
		h.tree.log.Info("addon renamed to keep sibling names unique",
			slog.String("requested", requested), slog.String("name", node.Name()))
	}
	if forceReady && h.tree.Running() {
		node.propagateReady()
	}
	return nil
}
