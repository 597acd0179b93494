// Package treesync reconciles monitoring platform device trees against
// the inventory system of record. It builds an expected tree from
// inventory records, loads the current tree from the platform, and
// applies the minimal set of mutations that converges one onto the
// other.
package treesync

import (
	"strings"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
)

// NodeKind distinguishes containers from leaves.
type NodeKind int

const (
	KindGroup NodeKind = iota
	KindDevice
)

// GroupDecor carries one-shot properties applied to a group when it is
// first created on the platform. Existing groups are never re-decorated.
type GroupDecor struct {
	// ServiceURL links the group back to its inventory record.
	ServiceURL string
	// DisableInheritLocation pins the group's own location instead of
	// the parent's, so geo maps place the site correctly.
	DisableInheritLocation bool
}

// Node is one object in a sync tree: either a group (container) or a
// device (leaf). Group and Device are payloads; only the one matching
// Kind is meaningful.
type Node struct {
	Kind   NodeKind
	Group  prtg.Group
	Device prtg.Device

	// Item backs a device node in the expected tree with its inventory
	// record. Current-tree nodes carry nil.
	Item *snow.ConfigItem

	// Decor is applied once when the reconciler creates this group.
	Decor *GroupDecor

	parent   *Node
	children []*Node
}

// GroupNode wraps a group record in a detached node.
func GroupNode(g prtg.Group) *Node {
	return &Node{Kind: KindGroup, Group: g}
}

// DeviceNode wraps a device record in a detached node. item may be nil
// for current-tree nodes.
func DeviceNode(d prtg.Device, item *snow.ConfigItem) *Node {
	return &Node{Kind: KindDevice, Device: d, Item: item}
}

// ID returns the platform object id of the node's payload. Zero means
// the object does not exist on the platform yet.
func (n *Node) ID() int {
	if n.Kind == KindDevice {
		return n.Device.ID
	}
	return n.Group.ID
}

// Name returns the payload name.
func (n *Node) Name() string {
	if n.Kind == KindDevice {
		return n.Device.Name
	}
	return n.Group.Name
}

// Parent returns the containing node, or nil for the root and for
// detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's direct children. The returned slice is
// the tree's own backing array; callers must not mutate it.
func (n *Node) Children() []*Node { return n.children }

// Path returns the chain from the root down to n, inclusive.
func (n *Node) Path() []*Node {
	var rev []*Node
	for cur := n; cur != nil; cur = cur.parent {
		rev = append(rev, cur)
	}
	path := make([]*Node, len(rev))
	for i, p := range rev {
		path[len(rev)-1-i] = p
	}
	return path
}

// Tree is an arena of nodes rooted at a single container, with an index
// from platform id to node. Nodes without a platform id (expected-tree
// objects not yet created) stay out of the index until stamped.
type Tree struct {
	root *Node
	byID map[int]*Node
}

// NewTree roots a tree at root and indexes its subtree.
func NewTree(root *Node) *Tree {
	t := &Tree{root: root, byID: make(map[int]*Node)}
	t.index(root)
	return t
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// ByID returns the node carrying the given platform id, or nil.
func (t *Tree) ByID(id int) *Node {
	if id == 0 {
		return nil
	}
	return t.byID[id]
}

// AddChild attaches child under parent and indexes it.
func (t *Tree) AddChild(parent, child *Node) {
	child.parent = parent
	parent.children = append(parent.children, child)
	t.index(child)
}

// Move reparents node under newParent. Detached nodes (parent nil) are
// simply attached.
func (t *Tree) Move(node, newParent *Node) {
	t.detach(node)
	node.parent = newParent
	newParent.children = append(newParent.children, node)
	t.index(node)
}

// Remove detaches node and drops its whole subtree from the index.
func (t *Tree) Remove(node *Node) {
	t.detach(node)
	node.parent = nil
	t.unindex(node)
}

// SetID stamps a platform id onto a node's payload and indexes it.
// The reconciler uses this to record resolved and created ids on
// expected-tree nodes.
func (t *Tree) SetID(n *Node, id int) {
	if n.Kind == KindDevice {
		n.Device.ID = id
	} else {
		n.Group.ID = id
	}
	if id != 0 {
		t.byID[id] = n
	}
}

// Walk visits the tree in level order, the same order objects must be
// created in: every parent before any of its children. Returning false
// from fn stops the walk.
func (t *Tree) Walk(fn func(*Node) bool) {
	queue := []*Node{t.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !fn(n) {
			return
		}
		queue = append(queue, n.children...)
	}
}

// Devices returns all device nodes in level order.
func (t *Tree) Devices() []*Node {
	var out []*Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindDevice {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindChildGroup returns the group directly under parent whose name
// matches. An exact match wins; otherwise a group whose current name
// starts with the wanted name is accepted, so operator-annotated groups
// ("[ACM] HQ (migrating)") still resolve.
func FindChildGroup(parent *Node, name string) *Node {
	for _, c := range parent.children {
		if c.Kind == KindGroup && c.Group.Name == name {
			return c
		}
	}
	for _, c := range parent.children {
		if c.Kind == KindGroup && strings.HasPrefix(c.Group.Name, name) {
			return c
		}
	}
	return nil
}

func (t *Tree) index(n *Node) {
	if id := n.ID(); id != 0 {
		t.byID[id] = n
	}
	for _, c := range n.children {
		t.index(c)
	}
}

func (t *Tree) unindex(n *Node) {
	if id := n.ID(); id != 0 {
		delete(t.byID, id)
	}
	for _, c := range n.children {
		t.unindex(c)
	}
}

func (t *Tree) detach(n *Node) {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
}
