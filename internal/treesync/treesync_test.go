package treesync

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/store"
	"github.com/HerbHall/treeline/pkg/plugin"
	"github.com/HerbHall/treeline/pkg/plugin/plugintest"
)

// Compile-time interface guards (repeated in tests to catch regressions).
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HTTPProvider   = (*Module)(nil)
	_ plugin.HealthReporter = (*Module)(nil)
	_ plugin.Validator      = (*Module)(nil)
)

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestInfo(t *testing.T) {
	info := New().Info()

	if info.Name != "treesync" {
		t.Errorf("Name = %q, want %q", info.Name, "treesync")
	}
	if info.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", info.Version, "1.0.0")
	}
	if info.Description == "" {
		t.Error("Description must not be empty")
	}
	if info.APIVersion != plugin.APIVersionCurrent {
		t.Errorf("APIVersion = %d, want %d", info.APIVersion, plugin.APIVersionCurrent)
	}
	if len(info.Dependencies) != 1 || info.Dependencies[0] != "sites" {
		t.Errorf("Dependencies = %v, want [sites]", info.Dependencies)
	}
}

func TestLifecycle(t *testing.T) {
	m := New()
	deps := plugin.Dependencies{Logger: zap.NewNop()}

	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	// No upstream connections configured: the module stays passive.
	if m.engine != nil {
		t.Error("engine built without configuration")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestLifecycle_WithStore(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := New()
	deps := plugin.Dependencies{Logger: zap.NewNop(), Store: db}

	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if m.store == nil {
		t.Fatal("run store not wired")
	}
	// Migrations applied: the run tables answer queries.
	if _, err := m.store.ListRuns(context.Background(), "", "", 0, 0); err != nil {
		t.Errorf("ListRuns() after Init error = %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil for defaults", err)
	}

	m.cfg.Workers = 0
	if err := m.ValidateConfig(); err == nil || !strings.Contains(err.Error(), "workers") {
		t.Errorf("ValidateConfig() error = %v, want workers complaint", err)
	}

	m.cfg = DefaultConfig()
	m.cfg.Schedule = "whenever"
	if err := m.ValidateConfig(); err == nil || !strings.Contains(err.Error(), "invalid schedule") {
		t.Errorf("ValidateConfig() error = %v, want schedule complaint", err)
	}
}

func TestHealth(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	h := m.Health()
	if h.Status != "degraded" {
		t.Errorf("unconfigured Health() = %q, want degraded", h.Status)
	}

	mSynced, _, _ := syncedModule(t)
	mSynced.cfg.Schedule = "0 2 * * *"
	mSynced.inflight.Store(siteKey("Acme Corp", "HQ"), struct{}{})
	h = mSynced.Health()
	if h.Status != "healthy" {
		t.Errorf("configured Health() = %q, want healthy", h.Status)
	}
	if h.Details["in_flight"] != "1" {
		t.Errorf("in_flight = %q, want 1", h.Details["in_flight"])
	}
	if h.Details["schedule"] != "0 2 * * *" {
		t.Errorf("schedule = %q", h.Details["schedule"])
	}
}

func TestSiteKey(t *testing.T) {
	if got := siteKey("Acme Corp", "HQ"); got != "Acme Corp|HQ" {
		t.Errorf("siteKey() = %q", got)
	}
}
