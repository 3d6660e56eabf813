// Package scene provides the node tree that addons are attached to.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"AddonLoader/pkg/addon"
)

// Readier is implemented by addon objects that want a callback once they are
// part of a running tree.
type Readier interface {
	Ready(node *Node)
}

// Exiter is implemented by addon objects that release resources when their
// node leaves the tree.
type Exiter interface {
	ExitTree(node *Node)
}

// Node is an element of the tree. A node either stands on its own or wraps
// an addon object supplied by a code module.
type Node struct {
	mu       sync.RWMutex
	name     string
	parent   *Node
	children []*Node
	props    map[string]any
	payload  addon.Object
	onReady  []func(*Node)
	ready    bool
	tree     *Tree
}

// NewNode creates a detached node.
func NewNode(name string) *Node {
	return &Node{name: name, props: map[string]any{}}
}

// Wrap returns obj itself when it is already a node, otherwise a node that
// carries obj as payload and mirrors its name.
func Wrap(obj addon.Object) *Node {
	if n, ok := obj.(*Node); ok {
		return n
	}
	n := NewNode(obj.Name())
	n.payload = obj
	return n
}

// Name implements addon.Object.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// SetName implements addon.Object.
func (n *Node) SetName(name string) {
	n.mu.Lock()
	n.name = name
	payload := n.payload
	n.mu.Unlock()
	if payload != nil {
		payload.SetName(name)
	}
}

// Payload returns the wrapped addon object, if any.
func (n *Node) Payload() addon.Object {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.payload
}

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Children returns a snapshot of the children in insertion order.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*Node(nil), n.children...)
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Path returns the absolute path of the node, e.g. /root/Addons/hud.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// SetProperty stores a property value.
func (n *Node) SetProperty(key string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.props[key] = value
}

// Property returns a property value.
func (n *Node) Property(key string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.props[key]
	return v, ok
}

// PropertyNames returns the sorted property keys.
func (n *Node) PropertyNames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := make([]string, 0, len(n.props))
	for k := range n.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OnReady registers a callback run when the node becomes ready.
func (n *Node) OnReady(fn func(*Node)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onReady = append(n.onReady, fn)
}

// IsReady reports whether the ready callbacks already ran.
func (n *Node) IsReady() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ready
}

// AddChild appends child. With legibleUniqueName a clashing name is replaced
// by the first free "<name>N" (N >= 2); otherwise a clash is an error.
func (n *Node) AddChild(child *Node, legibleUniqueName bool) error {
	if child == nil {
		return errors.New("child cannot be nil")
	}
	if child == n {
		return errors.New("node cannot be its own child")
	}
	if child.Parent() != nil {
		return fmt.Errorf("node %s already has a parent", child.Name())
	}

	n.mu.Lock()
	name := child.Name()
	if name == "" {
		name = "Node"
	}
	if n.hasChildLocked(name) {
		if !legibleUniqueName {
			n.mu.Unlock()
			return fmt.Errorf("node %s already has a child named %s", n.name, name)
		}
		base := strings.TrimRightFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
		for i := 2; ; i++ {
			candidate := base + strconv.Itoa(i)
			if !n.hasChildLocked(candidate) {
				name = candidate
				break
			}
		}
	}
	n.children = append(n.children, child)
	tree := n.tree
	n.mu.Unlock()

	if name != child.Name() {
		child.SetName(name)
	}
	child.mu.Lock()
	child.parent = n
	child.mu.Unlock()
	child.setTree(tree)
	return nil
}

// RemoveChild detaches child and notifies its subtree.
func (n *Node) RemoveChild(child *Node) error {
	n.mu.Lock()
	idx := -1
	for i, c := range n.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		n.mu.Unlock()
		return fmt.Errorf("%s is not a child of %s", child.Name(), n.name)
	}
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	n.mu.Unlock()

	child.exitTree()
	child.mu.Lock()
	child.parent = nil
	child.mu.Unlock()
	child.setTree(nil)
	return nil
}

func (n *Node) hasChildLocked(name string) bool {
	for _, c := range n.children {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func (n *Node) setTree(t *Tree) {
	n.mu.Lock()
	n.tree = t
	children := append([]*Node(nil), n.children...)
	n.mu.Unlock()
	for _, c := range children {
		c.setTree(t)
	}
}

// propagateReady readies children before their parent.
func (n *Node) propagateReady() {
	for _, c := range n.Children() {
		c.propagateReady()
	}
	n.mu.Lock()
	if n.ready {
		n.mu.Unlock()
		return
	}
	n.ready = true
	callbacks := append(([]func(*Node))(nil), n.onReady...)
	payload := n.payload
	n.mu.Unlock()

	for _, fn := range callbacks {
		fn(n)
	}
	if r, ok := payload.(Readier); ok {
		r.Ready(n)
	}
}

func (n *Node) exitTree() {
	for _, c := range n.Children() {
		c.exitTree()
	}
	n.mu.Lock()
	wasReady := n.ready
	n.ready = false
	payload := n.payload
	n.mu.Unlock()
	if e, ok := payload.(Exiter); ok && wasReady {
		e.ExitTree(n)
	}
}
