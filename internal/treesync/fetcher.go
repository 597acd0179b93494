package treesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/HerbHall/treeline/internal/prtg"
)

// BuildCurrent loads the live subtree under rootID. One transitive
// device query covers all leaves; ancestor groups are fetched lazily on
// the walk from each device up to an already-known node, so deep but
// sparse trees cost few requests.
func BuildCurrent(ctx context.Context, mon Monitoring, rootID int) (*Tree, error) {
	root, err := fetchContainer(ctx, mon, rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch root %d: %w", rootID, err)
	}
	t := NewTree(GroupNode(*root))

	devices, err := mon.GetDevicesByGroup(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch devices under %d: %w", rootID, err)
	}
	for i := range devices {
		parent, err := materializeAncestors(ctx, mon, t, devices[i].ParentID)
		if err != nil {
			return nil, err
		}
		t.AddChild(parent, DeviceNode(devices[i], nil))
	}
	return t, nil
}

// fetchContainer gets a group by id, falling back to the probe table:
// a site root may be either, and both behave as containers.
func fetchContainer(ctx context.Context, mon Monitoring, id int) (*prtg.Group, error) {
	g, err := mon.GetGroup(ctx, id)
	if err == nil {
		return g, nil
	}
	var nf *prtg.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	return mon.GetProbe(ctx, id)
}

// materializeAncestors walks parent ids upward from a device until it
// reaches a node already in the tree, then attaches the discovered
// chain top-down and returns the device's direct parent node.
func materializeAncestors(ctx context.Context, mon Monitoring, t *Tree, parentID int) (*Node, error) {
	var chain []prtg.Group // leaf-most first
	id := parentID
	for {
		if n := t.ByID(id); n != nil {
			for i := len(chain) - 1; i >= 0; i-- {
				g := GroupNode(chain[i])
				t.AddChild(n, g)
				n = g
			}
			return n, nil
		}
		if id == 0 {
			return nil, fmt.Errorf("parent chain from %d escaped the root subtree", parentID)
		}
		g, err := fetchContainer(ctx, mon, id)
		if err != nil {
			return nil, fmt.Errorf("fetch group %d: %w", id, err)
		}
		chain = append(chain, *g)
		id = g.ParentID
	}
}
