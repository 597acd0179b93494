package treesync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoItems signals that the inventory returned zero monitored config
// items for a site that was expected to have some.
var ErrNoItems = errors.New("no active monitored config items")

// Engine executes sync runs against one inventory and one monitoring
// platform.
type Engine struct {
	inv    Inventory
	mon    Monitoring
	cfg    Config
	logger *zap.Logger

	onEvent func(topic string, payload any)

	// pingFunc is the reachability probe used by field checks.
	// Replaced in tests.
	pingFunc func(ctx context.Context, addr string) bool
}

// NewEngine builds an engine over the two clients.
func NewEngine(inv Inventory, mon Monitoring, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{inv: inv, mon: mon, cfg: cfg, logger: logger, pingFunc: icmpPing}
}

// Events registers a sink for object-level change events emitted during
// reconciliation.
func (e *Engine) Events(fn func(topic string, payload any)) { e.onEvent = fn }

// SyncRequest identifies one site binding and its run modifiers.
type SyncRequest struct {
	Company    string `json:"company_name"`
	Site       string `json:"site_name"`
	RootID     int    `json:"root_id"`
	RootIsSite bool   `json:"root_is_site"`
	Delete     bool   `json:"delete"`
	DryRun     bool   `json:"dry_run"`
	FieldCheck bool   `json:"field_check"`
}

// Validate checks the request names a syncable site.
func (r SyncRequest) Validate() error {
	if r.Company == "" {
		return errors.New("company_name is required")
	}
	if r.Site == "" {
		return errors.New("site_name is required")
	}
	if r.RootID <= 0 {
		return errors.New("root_id must be a positive object id")
	}
	return nil
}

// Sync runs one site reconciliation end to end: resolve the company and
// location, build both trees, and converge the platform onto the
// expected layout. A non-nil Result together with an error means the
// run aborted partway; the Result covers mutations already applied.
func (e *Engine) Sync(ctx context.Context, req SyncRequest) (*Result, error) {
	company, err := e.inv.GetCompany(ctx, req.Company)
	if err != nil {
		return nil, err
	}
	location, err := e.inv.GetLocation(ctx, req.Site)
	if err != nil {
		return nil, err
	}

	count, err := e.inv.GetDeviceCount(ctx, company, location)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		// An empty result reads like a filter glitch far more often
		// than a real site teardown. Refuse rather than risk wiping
		// the subtree on a delete-enabled run.
		return nil, fmt.Errorf("%w for %s / %s", ErrNoItems, company.Name, location.Name)
	}

	items, err := e.inv.GetConfigItems(ctx, company, location)
	if err != nil {
		return nil, err
	}

	if req.FieldCheck {
		report := e.checkItems(ctx, company, location, items)
		if !report.OK {
			return nil, &FieldCheckError{Report: report}
		}
	}

	expected, skipped := BuildExpected(company, location, items, e.adapterOptions(req.RootIsSite), e.logger)
	current, err := BuildCurrent(ctx, e.mon, req.RootID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("reconciling site",
		zap.String("company", company.Name),
		zap.String("site", location.Name),
		zap.Int("root_id", req.RootID),
		zap.Int("items", len(items)),
		zap.Bool("dry_run", req.DryRun),
		zap.Bool("delete", req.Delete))

	rec := NewReconciler(e.inv, e.mon, e.logger, ReconcileOptions{Delete: req.Delete, DryRun: req.DryRun})
	rec.Events(e.onEvent)
	res, rerr := rec.Reconcile(ctx, expected, current)
	if res != nil && len(skipped) > 0 {
		pre := make([]string, 0, len(skipped)+len(res.Skipped))
		for _, s := range skipped {
			pre = append(pre, fmt.Sprintf("%s: %v", s.Name, s.Err))
		}
		res.Skipped = append(pre, res.Skipped...)
	}
	return res, rerr
}

func (e *Engine) adapterOptions(rootIsSite bool) AdapterOptions {
	return AdapterOptions{
		RootIsSite:    rootIsSite,
		MinDevices:    e.cfg.MinDevices,
		InternalLabel: e.cfg.InternalLabel,
		ExternalLabel: e.cfg.ExternalLabel,
		Resume:        e.cfg.Resume,
	}
}
