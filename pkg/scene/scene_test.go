package scene

import (
	"reflect"
	"testing"
)

type payload struct {
	name   string
	ready  int
	exited int
}

func (p *payload) Name() string        { return p.name }
func (p *payload) SetName(name string) { p.name = name }
func (p *payload) Ready(*Node)         { p.ready++ }
func (p *payload) ExitTree(*Node)      { p.exited++ }

func TestAddChildLegibleUniqueNames(t *testing.T) {
	parent := NewNode("AddonLoader")
	names := []string{"foo", "foo", "foo", "bar", "foo2"}
	var got []string
	for _, name := range names {
		child := NewNode(name)
		if err := parent.AddChild(child, true); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		got = append(got, child.Name())
	}
	want := []string{"foo", "foo2", "foo3", "bar", "foo4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names %v, want %v", got, want)
	}
}

func TestAddChildStrictNames(t *testing.T) {
	parent := NewNode("p")
	if err := parent.AddChild(NewNode("a"), false); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := parent.AddChild(NewNode("a"), false); err == nil {
		t.Fatalf("expected clash error")
	}
	if err := parent.AddChild(parent, false); err == nil {
		t.Fatalf("expected self-parent error")
	}
	child, _ := parent.Child("a")
	if err := NewNode("other").AddChild(child, false); err == nil {
		t.Fatalf("expected error re-parenting an attached node")
	}
}

func TestPathAndRemove(t *testing.T) {
	tree := NewTree()
	hud := NewNode("hud")
	label := NewNode("Label")
	if err := hud.AddChild(label, false); err != nil {
		t.Fatalf("add label: %v", err)
	}
	if err := tree.Root().AddChild(hud, false); err != nil {
		t.Fatalf("add hud: %v", err)
	}
	if label.Path() != "/root/hud/Label" {
		t.Fatalf("unexpected path %q", label.Path())
	}
	if err := tree.Root().RemoveChild(hud); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if hud.Parent() != nil || len(tree.Root().Children()) != 0 {
		t.Fatalf("node still attached after removal")
	}
	if err := tree.Root().RemoveChild(hud); err == nil {
		t.Fatalf("expected error removing a detached node")
	}
}

func TestStartReadiesChildrenFirst(t *testing.T) {
	tree := NewTree()
	var order []string
	record := func(n *Node) { order = append(order, n.Name()) }

	a := NewNode("a")
	b := NewNode("b")
	a.OnReady(record)
	b.OnReady(record)
	tree.Root().OnReady(record)
	if err := a.AddChild(b, false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tree.Root().AddChild(a, false); err != nil {
		t.Fatalf("add: %v", err)
	}

	tree.Start()
	tree.Start()

	if want := []string{"b", "a", "root"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("unexpected ready order %v, want %v", order, want)
	}
	if !b.IsReady() || !tree.Running() {
		t.Fatalf("tree should be running with ready nodes")
	}
}

func TestHostAttachChild(t *testing.T) {
	tree := NewTree()
	tree.Start()
	host := tree.Host(nil)

	first := &payload{name: "clock"}
	second := &payload{name: "clock"}
	if err := host.AttachChild(first, true); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := host.AttachChild(second, true); err != nil {
		t.Fatalf("attach duplicate: %v", err)
	}

	if second.name != "clock2" {
		t.Fatalf("expected payload to follow the unique name, got %q", second.name)
	}
	if first.ready != 1 || second.ready != 1 {
		t.Fatalf("expected forced ready once each: %d %d", first.ready, second.ready)
	}
	node, ok := tree.Root().Child("clock2")
	if !ok || node.Payload() != second {
		t.Fatalf("wrapped node not found")
	}

	tree.Stop()
	if first.exited != 1 || second.exited != 1 || tree.Running() {
		t.Fatalf("expected exit callbacks on stop")
	}
}

func TestHostAttachWithoutForceReady(t *testing.T) {
	tree := NewTree()
	tree.Start()
	p := &payload{name: "lazy"}
	if err := tree.Host(nil).AttachChild(p, false); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if p.ready != 0 {
		t.Fatalf("ready must not run without forceReady")
	}
	if err := tree.Host(nil).AttachChild(nil, true); err == nil {
		t.Fatalf("expected error for nil object")
	}
}

func TestHostAttachBeforeStart(t *testing.T) {
	tree := NewTree()
	p := &payload{name: "early"}
	if err := tree.Host(nil).AttachChild(p, true); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if p.ready != 0 {
		t.Fatalf("a stopped tree must not ready nodes")
	}
	tree.Start()
	if p.ready != 1 {
		t.Fatalf("expected ready on start, got %d", p.ready)
	}
}

func TestProperties(t *testing.T) {
	n := NewNode("n")
	n.SetProperty("b", 2.0)
	n.SetProperty("a", "x")
	if v, ok := n.Property("a"); !ok || v != "x" {
		t.Fatalf("unexpected property %v %v", v, ok)
	}
	if names := n.PropertyNames(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Fatalf("unexpected names %v", names)
	}
}
