package treesync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/sites"
	"github.com/HerbHall/treeline/internal/snow"
	"github.com/HerbHall/treeline/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HTTPProvider   = (*Module)(nil)
	_ plugin.HealthReporter = (*Module)(nil)
	_ plugin.Validator      = (*Module)(nil)
)

// SiteLister is the slice of the sites plugin the scheduler and
// all-site syncs consume, resolved through the registry.
type SiteLister interface {
	ListEnabled(ctx context.Context) ([]sites.Site, error)
	RecordRun(ctx context.Context, id, status string) error
}

// Module is the treesync plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	engine  *Engine
	store   *RunStore
	bus     plugin.EventBus
	plugins plugin.PluginResolver
	sched   *Scheduler
	sites   SiteLister

	// inflight dedupes concurrent syncs per company|location key.
	inflight sync.Map
	wg       sync.WaitGroup
	runCtx   context.Context
	cancel   context.CancelFunc
}

// New creates the treesync module.
func New() *Module { return &Module{} }

// Info implements plugin.Plugin.
func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "treesync",
		Version:      "1.0.0",
		Description:  "Reconciles monitoring platform device trees against the CMDB",
		Dependencies: []string{"sites"},
		Roles:        []string{"sync"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

// Init implements plugin.Plugin.
func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.bus = deps.Bus
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("parse treesync config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "treesync", migrations()); err != nil {
			return fmt.Errorf("migrate treesync schema: %w", err)
		}
		m.store = NewRunStore(deps.Store.DB())
	}

	if m.cfg.Configured() {
		m.engine = NewEngine(snow.NewClient(m.cfg.Snow), prtg.NewClient(m.cfg.Prtg), m.cfg, m.logger)
		m.engine.Events(m.publish)
	} else {
		m.logger.Warn("treesync passive: inventory or platform connection not configured")
	}
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

// Start implements plugin.Plugin.
func (m *Module) Start(_ context.Context) error {
	m.runCtx, m.cancel = context.WithCancel(context.Background())

	if m.plugins != nil {
		if p, ok := m.plugins.Resolve("sites"); ok {
			if lister, ok := p.(SiteLister); ok {
				m.sites = lister
			}
		}
	}
	if m.sites == nil {
		m.logger.Warn("sites plugin unavailable; scheduled and all-site syncs disabled")
	}

	if m.cfg.Schedule != "" && m.engine != nil && m.sites != nil {
		m.sched = NewScheduler(m.cfg.Schedule, func() { m.syncAll(TriggerSchedule) }, m.logger)
		if err := m.sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	return nil
}

// Stop implements plugin.Plugin. It halts the scheduler, cancels
// running syncs and waits for them to wind down.
func (m *Module) Stop(_ context.Context) error {
	if m.sched != nil {
		m.sched.Stop()
		m.sched = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

// Health implements plugin.HealthReporter.
func (m *Module) Health() plugin.HealthStatus {
	if m.engine == nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "inventory or platform connection not configured",
		}
	}
	inflight := 0
	m.inflight.Range(func(_, _ any) bool { inflight++; return true })
	details := map[string]string{"in_flight": strconv.Itoa(inflight)}
	if m.cfg.Schedule != "" {
		details["schedule"] = m.cfg.Schedule
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// RunDevices returns the device change rows journaled for a run. Other
// plugins resolve the module and read run history through this method
// rather than touching the treesync tables.
func (m *Module) RunDevices(ctx context.Context, runID string) ([]RunDevice, error) {
	if m.store == nil {
		return nil, fmt.Errorf("run history not configured")
	}
	return m.store.ListRunDevices(ctx, runID)
}

// runSite executes one recorded sync: a run row brackets the engine
// call, device changes are journaled, metrics and events emitted.
func (m *Module) runSite(ctx context.Context, req SyncRequest, trigger string) (*Run, *Result, error) {
	run := &Run{
		Company: req.Company,
		Site:    req.Site,
		RootID:  req.RootID,
		Trigger: trigger,
		DryRun:  req.DryRun,
		Delete:  req.Delete,
	}
	started := time.Now()
	if m.store != nil {
		if err := m.store.CreateRun(ctx, run); err != nil {
			m.logger.Error("create run record failed", zap.Error(err))
		}
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	m.publish(TopicRunStarted, RunEvent{
		RunID: run.ID, Company: run.Company, Site: run.Site,
		Trigger: trigger, DryRun: req.DryRun,
	})

	res, err := m.engine.Sync(ctx, req)

	if res != nil {
		run.Added = len(res.Added)
		run.Deleted = len(res.Deleted)
		run.Updated = res.Updated
		run.Moved = res.Moved
		run.GroupsCreated = res.GroupsCreated
		run.GroupsPruned = res.GroupsPruned
		run.Skipped = len(res.Skipped)
	}
	run.Status = RunStatusCompleted
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	}

	if m.store != nil {
		if serr := m.store.FinishRun(ctx, run); serr != nil {
			m.logger.Error("finish run record failed", zap.Error(serr))
		}
		if res != nil {
			if serr := m.store.AddRunDevices(ctx, run.ID, "added", res.Added); serr != nil {
				m.logger.Error("record added devices failed", zap.Error(serr))
			}
			if serr := m.store.AddRunDevices(ctx, run.ID, "deleted", res.Deleted); serr != nil {
				m.logger.Error("record deleted devices failed", zap.Error(serr))
			}
		}
		if m.cfg.RunRetention > 0 {
			if serr := m.store.Prune(ctx, m.cfg.RunRetention); serr != nil {
				m.logger.Warn("prune run history failed", zap.Error(serr))
			}
		}
	}

	recordRunMetrics(trigger, run, time.Since(started).Seconds())

	var fce *FieldCheckError
	if errors.As(err, &fce) {
		m.publish(TopicFieldCheckFailed, FieldCheckEvent{
			Company: req.Company, Site: req.Site,
			Items:  fce.Report.Items,
			Errors: len(fce.Report.Errors), Warnings: len(fce.Report.Warnings),
		})
	}
	topic := TopicRunCompleted
	if err != nil {
		topic = TopicRunFailed
	}
	m.publish(topic, RunEvent{
		RunID: run.ID, Company: run.Company, Site: run.Site,
		Trigger: trigger, DryRun: run.DryRun,
		Added: run.Added, Deleted: run.Deleted, Updated: run.Updated,
		Moved: run.Moved, Skipped: run.Skipped, Error: run.Error,
	})
	return run, res, err
}

// syncAll fans one sync per enabled site binding across the worker
// pool and returns the number queued. Sites already in flight are
// skipped, not queued: an overlapping run would only repeat work the
// running sync is already doing.
func (m *Module) syncAll(trigger string) int {
	if m.engine == nil || m.sites == nil {
		m.logger.Warn("all-site sync skipped: engine or sites unavailable")
		return 0
	}
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	bindings, err := m.sites.ListEnabled(ctx)
	if err != nil {
		m.logger.Error("list site bindings failed", zap.Error(err))
		return 0
	}

	sem := make(chan struct{}, m.cfg.Workers)
	queued := 0
	for _, b := range bindings {
		key := siteKey(b.Company, b.Location)
		if _, busy := m.inflight.LoadOrStore(key, struct{}{}); busy {
			m.logger.Info("site sync already in flight, skipping", zap.String("site", key))
			continue
		}
		queued++
		m.wg.Add(1)
		go func(b sites.Site, key string) {
			defer m.wg.Done()
			defer m.inflight.Delete(key)
			sem <- struct{}{}
			defer func() { <-sem }()
			sitesInFlight.Inc()
			defer sitesInFlight.Dec()

			req := SyncRequest{
				Company:    b.Company,
				Site:       b.Location,
				RootID:     b.RootID,
				RootIsSite: b.RootIsSite,
				Delete:     b.DeleteEnabled,
			}
			run, _, err := m.runSite(ctx, req, trigger)
			if rerr := m.sites.RecordRun(ctx, b.ID, run.Status); rerr != nil {
				m.logger.Warn("record site outcome failed", zap.String("site", key), zap.Error(rerr))
			}
			if err != nil {
				m.logger.Error("site sync failed",
					zap.String("company", b.Company),
					zap.String("site", b.Location),
					zap.Error(err))
			}
		}(b, key)
	}
	return queued
}

func (m *Module) publish(topic string, payload any) {
	if m.bus == nil {
		return
	}
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "treesync",
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func siteKey(company, location string) string {
	return company + "|" + location
}
