package treesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
)

// ReconcileOptions select run modifiers.
type ReconcileOptions struct {
	// Delete removes current-tree devices absent from the expected
	// tree. Off by default: decommissioning is opt-in per site.
	Delete bool

	// DryRun computes and reports every change without touching the
	// platform or the inventory. Created objects get synthetic
	// negative ids so dependent changes still chain.
	DryRun bool
}

// DeviceChange records one created or removed device.
type DeviceChange struct {
	Name       string `json:"name"`
	PlatformID int    `json:"platform_id"`
	DeviceURL  string `json:"device_url,omitempty"`
	ItemLink   string `json:"item_link,omitempty"`
}

// Result summarizes one reconciliation.
type Result struct {
	Added         []DeviceChange `json:"added"`
	Deleted       []DeviceChange `json:"deleted"`
	Updated       int            `json:"updated"`
	Moved         int            `json:"moved"`
	GroupsCreated int            `json:"groups_created"`
	GroupsPruned  int            `json:"groups_pruned"`
	Skipped       []string       `json:"skipped,omitempty"`
	DryRun        bool           `json:"dry_run"`
}

// Reconciler applies the mutation set that converges the platform
// subtree onto the expected tree.
type Reconciler struct {
	inv    Inventory
	mon    Monitoring
	logger *zap.Logger
	opts   ReconcileOptions

	onEvent func(topic string, payload any)
	synthID int
}

// NewReconciler builds a reconciler over the two clients.
func NewReconciler(inv Inventory, mon Monitoring, logger *zap.Logger, opts ReconcileOptions) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{inv: inv, mon: mon, logger: logger, opts: opts, synthID: -1}
}

// Events registers a sink for object-level change events.
func (r *Reconciler) Events(fn func(topic string, payload any)) { r.onEvent = fn }

// Reconcile converges current onto expected. Per-device failures are
// logged and collected in Result.Skipped; the run continues. A
// run-aborting failure (root mismatch, upstream retry exhaustion,
// cancellation) returns the error together with the partial Result of
// mutations already applied.
func (r *Reconciler) Reconcile(ctx context.Context, expected, current *Tree) (*Result, error) {
	// The live root must extend the expected root name. Anything else
	// means the configured root id points into the wrong subtree, and
	// one customer's layout must never be rebuilt inside another's.
	if !strings.HasPrefix(current.Root().Name(), expected.Root().Name()) {
		return nil, &RootMismatchError{
			Expected: expected.Root().Name(),
			Current:  current.Root().Name(),
		}
	}

	res := &Result{
		Added:   []DeviceChange{},
		Deleted: []DeviceChange{},
		DryRun:  r.opts.DryRun,
	}
	expected.SetID(expected.Root(), current.Root().ID())
	resolved := map[*Node]*Node{expected.Root(): current.Root()}

	for _, e := range expected.Devices() {
		if err := r.reconcileDevice(ctx, expected, current, resolved, e, res); err != nil {
			if runAborting(err) {
				return res, err
			}
			r.logger.Warn("device skipped",
				zap.String("device", e.Name()),
				zap.Error(err))
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", e.Name(), err))
		}
	}

	if r.opts.Delete {
		if err := r.deleteOrphans(ctx, expected, current, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Reconciler) reconcileDevice(ctx context.Context, expected, current *Tree, resolved map[*Node]*Node, e *Node, res *Result) error {
	parent, err := r.resolveParent(ctx, expected, current, resolved, e, res)
	if err != nil {
		return err
	}
	cur, err := r.findExisting(ctx, current, e)
	if err != nil {
		return err
	}
	if cur == nil {
		return r.createDevice(ctx, expected, current, e, parent, res)
	}
	expected.SetID(e, cur.ID())
	return r.updateDevice(ctx, current, e, cur, parent, res)
}

// resolveParent binds each expected ancestor of e to a current-tree
// group, creating the missing suffix of the chain top-down. A group
// matches only directly under its already-resolved parent, so
// same-named groups elsewhere in the tree are never captured.
func (r *Reconciler) resolveParent(ctx context.Context, expected, current *Tree, resolved map[*Node]*Node, e *Node, res *Result) (*Node, error) {
	path := e.Path()
	parent := resolved[path[0]] // the root, bound before the device loop
	for _, anc := range path[1 : len(path)-1] {
		if cur, ok := resolved[anc]; ok {
			parent = cur
			continue
		}
		cur := FindChildGroup(parent, anc.Name())
		if cur == nil {
			var err error
			cur, err = r.createGroup(ctx, current, anc, parent, res)
			if err != nil {
				return nil, err
			}
		}
		resolved[anc] = cur
		expected.SetID(anc, cur.ID())
		parent = cur
	}
	return parent, nil
}

// findExisting resolves the expected device to a live one by persisted
// monitoring id. Stale ids (object deleted on the platform) are cleared
// so the device is recreated; ids pointing outside the fetched subtree
// return a detached node the update path will attach or move.
func (r *Reconciler) findExisting(ctx context.Context, current *Tree, e *Node) (*Node, error) {
	if e.Item == nil || e.Item.MonitoringID == 0 {
		return nil, nil
	}
	id := e.Item.MonitoringID
	if n := current.ByID(id); n != nil && n.Kind == KindDevice {
		return n, nil
	}
	live, err := r.mon.GetDevice(ctx, id)
	if err != nil {
		var nf *prtg.NotFoundError
		if errors.As(err, &nf) {
			r.logger.Info("stale monitoring id cleared",
				zap.Int("id", id),
				zap.String("item", e.Item.Name))
			e.Item.MonitoringID = 0
			return nil, nil
		}
		return nil, fmt.Errorf("look up device %d: %w", id, err)
	}
	return DeviceNode(*live, e.Item), nil
}

func (r *Reconciler) createGroup(ctx context.Context, current *Tree, e, parent *Node, res *Result) (*Node, error) {
	g := e.Group
	if r.opts.DryRun {
		g.ID = r.nextSynthetic()
	} else {
		created, err := r.mon.AddGroup(ctx, g, parent.ID())
		if err != nil {
			return nil, fmt.Errorf("create group %q: %w", g.Name, err)
		}
		g = *created
	}
	n := GroupNode(g)
	current.AddChild(parent, n)
	res.GroupsCreated++
	r.publish(TopicGroupCreated, g.Name, g.ID)
	r.decorate(ctx, e, g.ID)
	return n, nil
}

// decorate applies one-shot creation properties. Failures are cosmetic
// and never fail the group.
func (r *Reconciler) decorate(ctx context.Context, e *Node, id int) {
	if e.Decor == nil || r.opts.DryRun {
		return
	}
	if e.Decor.DisableInheritLocation {
		if err := r.mon.SetInheritLocation(ctx, id, false); err != nil {
			r.logger.Warn("set inherit location failed", zap.Int("id", id), zap.Error(err))
		}
	}
	if e.Decor.ServiceURL != "" {
		if err := r.mon.SetServiceURL(ctx, id, e.Decor.ServiceURL); err != nil {
			r.logger.Warn("set service url failed", zap.Int("id", id), zap.Error(err))
		}
	}
}

func (r *Reconciler) createDevice(ctx context.Context, expected, current *Tree, e, parent *Node, res *Result) error {
	d := e.Device
	if r.opts.DryRun {
		d.ID = r.nextSynthetic()
	} else {
		created, err := r.mon.AddDevice(ctx, d, parent.ID())
		if err != nil {
			return fmt.Errorf("create device %q: %w", d.Name, err)
		}
		d = *created
	}
	n := DeviceNode(d, e.Item)
	current.AddChild(parent, n)
	expected.SetID(e, d.ID)

	change := DeviceChange{Name: d.Name, PlatformID: d.ID}
	if !r.opts.DryRun {
		change.DeviceURL = r.mon.DeviceURL(d.ID)
	}
	if e.Item != nil {
		change.ItemLink = e.Item.Link
	}
	res.Added = append(res.Added, change)
	r.publish(TopicDeviceAdded, d.Name, d.ID)

	if e.Item == nil {
		return nil
	}
	// Written back immediately, not batched: an interrupted run must
	// not leave created devices unrecorded in the inventory.
	e.Item.MonitoringID = d.ID
	if err := r.mutate(func() error { return r.inv.UpdateConfigItem(ctx, e.Item) }); err != nil {
		return fmt.Errorf("record monitoring id %d on %q: %w", d.ID, e.Item.Name, err)
	}
	return nil
}

func (r *Reconciler) updateDevice(ctx context.Context, current *Tree, e, cur, parent *Node, res *Result) error {
	exp := e.Device
	live := cur.Device
	changed := false

	if exp.Name != "" && exp.Name != live.Name {
		if err := r.mutate(func() error { return r.mon.Rename(ctx, live.ID, exp.Name) }); err != nil {
			return fmt.Errorf("rename %d: %w", live.ID, err)
		}
		cur.Device.Name = exp.Name
		changed = true
	}
	if exp.Host != "" && exp.Host != live.Host {
		if err := r.mutate(func() error { return r.mon.SetHost(ctx, live.ID, exp.Host) }); err != nil {
			return fmt.Errorf("set host %d: %w", live.ID, err)
		}
		cur.Device.Host = exp.Host
		changed = true
	}
	if exp.Priority != 0 && exp.Priority != live.Priority {
		if err := r.mutate(func() error { return r.mon.SetPriority(ctx, live.ID, exp.Priority) }); err != nil {
			return fmt.Errorf("set priority %d: %w", live.ID, err)
		}
		cur.Device.Priority = exp.Priority
		changed = true
	}
	if len(exp.Tags) > 0 && !sameTagSet(exp.Tags, live.Tags) {
		if err := r.mutate(func() error { return r.mon.SetTags(ctx, live.ID, exp.Tags) }); err != nil {
			return fmt.Errorf("set tags %d: %w", live.ID, err)
		}
		cur.Device.Tags = exp.Tags
		changed = true
	}
	// Service URL and icon are not table columns, so the live values
	// need a property read each.
	if exp.ServiceURL != "" {
		liveURL, err := r.mon.GetObjectProperty(ctx, live.ID, "serviceurl")
		if err != nil {
			return fmt.Errorf("read service url %d: %w", live.ID, err)
		}
		if liveURL != exp.ServiceURL {
			if err := r.mutate(func() error { return r.mon.SetServiceURL(ctx, live.ID, exp.ServiceURL) }); err != nil {
				return fmt.Errorf("set service url %d: %w", live.ID, err)
			}
			changed = true
		}
	}
	if exp.Icon != "" {
		liveIcon, err := r.mon.GetObjectProperty(ctx, live.ID, "deviceicon")
		if err != nil {
			return fmt.Errorf("read icon %d: %w", live.ID, err)
		}
		if liveIcon != exp.Icon {
			if err := r.mutate(func() error { return r.mon.SetIcon(ctx, live.ID, exp.Icon) }); err != nil {
				return fmt.Errorf("set icon %d: %w", live.ID, err)
			}
			changed = true
		}
	}

	// Position. Detached nodes were found live outside the fetched
	// subtree and attach here; in-tree nodes move when their parent
	// differs, then the vacated chain is pruned.
	switch {
	case cur.Parent() == nil:
		if live.ParentID == parent.ID() {
			current.AddChild(parent, cur)
		} else {
			if err := r.mutate(func() error { return r.mon.MoveObject(ctx, live.ID, parent.ID()) }); err != nil {
				return fmt.Errorf("move %d: %w", live.ID, err)
			}
			current.Move(cur, parent)
			res.Moved++
			r.publish(TopicDeviceMoved, cur.Name(), live.ID)
		}
	case cur.Parent() != parent:
		old := cur.Parent()
		if err := r.mutate(func() error { return r.mon.MoveObject(ctx, live.ID, parent.ID()) }); err != nil {
			return fmt.Errorf("move %d: %w", live.ID, err)
		}
		current.Move(cur, parent)
		res.Moved++
		r.publish(TopicDeviceMoved, cur.Name(), live.ID)
		if err := r.pruneUpward(ctx, current, old, res); err != nil {
			return err
		}
	}

	if changed {
		res.Updated++
		r.publish(TopicDeviceUpdated, cur.Name(), live.ID)
	}
	return nil
}

// deleteOrphans removes current devices whose ids no expected device
// resolved to, then prunes the groups they leave empty.
func (r *Reconciler) deleteOrphans(ctx context.Context, expected, current *Tree, res *Result) error {
	keep := make(map[int]bool)
	for _, e := range expected.Devices() {
		if id := e.ID(); id != 0 {
			keep[id] = true
		}
	}
	for _, cur := range current.Devices() {
		if keep[cur.ID()] {
			continue
		}
		name, id := cur.Name(), cur.ID()
		if err := r.mutate(func() error { return r.mon.DeleteObject(ctx, id) }); err != nil {
			if runAborting(err) {
				return fmt.Errorf("delete device %d: %w", id, err)
			}
			r.logger.Warn("device not deleted", zap.Int("id", id), zap.Error(err))
			continue
		}
		parent := cur.Parent()
		current.Remove(cur)
		res.Deleted = append(res.Deleted, DeviceChange{Name: name, PlatformID: id})
		r.publish(TopicDeviceDeleted, name, id)
		if err := r.pruneUpward(ctx, current, parent, res); err != nil {
			return err
		}
	}
	return nil
}

// pruneUpward deletes now-empty groups from start toward the root,
// stopping at the first non-empty ancestor. The root itself is never
// deleted.
func (r *Reconciler) pruneUpward(ctx context.Context, current *Tree, start *Node, res *Result) error {
	for n := start; n != nil && n != current.Root(); {
		if n.Kind != KindGroup || len(n.Children()) > 0 {
			return nil
		}
		parent := n.Parent()
		name, id := n.Name(), n.ID()
		if err := r.mutate(func() error { return r.mon.DeleteObject(ctx, id) }); err != nil {
			if runAborting(err) {
				return fmt.Errorf("prune group %d: %w", id, err)
			}
			r.logger.Warn("empty group left in place", zap.Int("id", id), zap.Error(err))
			return nil
		}
		current.Remove(n)
		res.GroupsPruned++
		r.publish(TopicGroupPruned, name, id)
		n = parent
	}
	return nil
}

// mutate runs a platform or inventory write, or skips it in dry-run.
func (r *Reconciler) mutate(fn func() error) error {
	if r.opts.DryRun {
		return nil
	}
	return fn()
}

func (r *Reconciler) publish(topic, name string, id int) {
	if r.onEvent != nil {
		r.onEvent(topic, ObjectEvent{Name: name, PlatformID: id, DryRun: r.opts.DryRun})
	}
}

func (r *Reconciler) nextSynthetic() int {
	id := r.synthID
	r.synthID--
	return id
}

// runAborting separates failures that poison the whole run from
// per-device ones. Retry exhaustion on either upstream means it is
// unreachable, and continuing would fail every remaining device slowly.
func runAborting(err error) bool {
	var st *snow.TransientError
	var pt *prtg.TransientError
	return errors.As(err, &st) || errors.As(err, &pt) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
