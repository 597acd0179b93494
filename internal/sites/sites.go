// Package sites manages the bindings between CMDB locations and
// monitoring subtree roots. Each binding names the company, the
// location, and the platform object the site's tree hangs under; the
// sync engine walks enabled bindings.
package sites

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HTTPProvider   = (*Module)(nil)
	_ plugin.HealthReporter = (*Module)(nil)
)

// Module is the sites plugin.
type Module struct {
	logger *zap.Logger
	store  *SiteStore
}

// New creates the sites module.
func New() *Module { return &Module{} }

// Info implements plugin.Plugin.
func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "sites",
		Version:     "1.0.0",
		Description: "Bindings between CMDB locations and monitoring subtree roots",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

// Init implements plugin.Plugin.
func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "sites", migrations()); err != nil {
			return fmt.Errorf("migrate sites schema: %w", err)
		}
		m.store = NewSiteStore(deps.Store.DB())
	}
	return nil
}

// Start implements plugin.Plugin.
func (m *Module) Start(context.Context) error { return nil }

// Stop implements plugin.Plugin.
func (m *Module) Stop(context.Context) error { return nil }

// Health implements plugin.HealthReporter.
func (m *Module) Health() plugin.HealthStatus {
	if m.store == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "site storage unavailable"}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "", Handler: m.handleList},
		{Method: http.MethodPost, Path: "", Handler: m.handleCreate},
		{Method: http.MethodGet, Path: "/{id}", Handler: m.handleGet},
		{Method: http.MethodPut, Path: "/{id}", Handler: m.handleUpdate},
		{Method: http.MethodDelete, Path: "/{id}", Handler: m.handleDelete},
	}
}

// ListEnabled returns the bindings scheduled syncs walk. Other plugins
// consume this through the registry.
func (m *Module) ListEnabled(ctx context.Context) ([]Site, error) {
	if m.store == nil {
		return nil, fmt.Errorf("site storage unavailable")
	}
	return m.store.ListEnabled(ctx)
}

// RecordRun stamps the outcome of the binding's latest sync.
func (m *Module) RecordRun(ctx context.Context, id, status string) error {
	if m.store == nil {
		return fmt.Errorf("site storage unavailable")
	}
	return m.store.RecordRun(ctx, id, status)
}
