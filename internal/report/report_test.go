package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/treeline/internal/treesync"
	"github.com/HerbHall/treeline/pkg/plugin"
	"github.com/HerbHall/treeline/pkg/plugin/plugintest"
	"go.uber.org/zap"
)

// Interface guards, repeated in tests to catch regressions.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ RunHistory             = (*treesync.Module)(nil)
)

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestInfo(t *testing.T) {
	info := New().Info()
	if info.Name != "report" {
		t.Errorf("Name = %q, want report", info.Name)
	}
	if len(info.Dependencies) != 1 || info.Dependencies[0] != "treesync" {
		t.Errorf("Dependencies = %v, want [treesync]", info.Dependencies)
	}
	if info.APIVersion != plugin.APIVersionCurrent {
		t.Errorf("APIVersion = %d, want %d", info.APIVersion, plugin.APIVersionCurrent)
	}
}

func TestSubscriptions(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	subs := m.Subscriptions()
	if len(subs) != 3 {
		t.Fatalf("Subscriptions() returned %d, want 3", len(subs))
	}

	topics := make(map[string]bool)
	for _, s := range subs {
		topics[s.Topic] = true
	}
	for _, topic := range []string{
		treesync.TopicRunCompleted,
		treesync.TopicRunFailed,
		treesync.TopicFieldCheckFailed,
	} {
		if !topics[topic] {
			t.Errorf("missing subscription for topic %q", topic)
		}
	}
}

func TestInit_Defaults(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if m.email != nil {
		t.Error("email client configured without a relay URL")
	}
	if !m.cfg.Enabled {
		t.Error("Enabled = false, want true by default")
	}
	if m.cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", m.cfg.Timeout)
	}
}

func TestStart_WiresRunHistory(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	m.plugins = &fakeResolver{plugins: map[string]plugin.Plugin{"treesync": treesync.New()}}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.runs == nil {
		t.Error("run history not wired from the treesync plugin")
	}
}

func TestHandleRun_DeliversEmail(t *testing.T) {
	var mu sync.Mutex
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emailReport/" {
			t.Errorf("path = %q, want /emailReport/", r.URL.Path)
		}
		if got := r.Header.Get("API_KEY"); got != "s3cret" {
			t.Errorf("API_KEY = %q, want s3cret", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q, want form encoding", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		mu.Lock()
		forms = append(forms, r.PostForm)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newEmailModule(srv.URL)
	m.handleRun(context.Background(), runEvent(treesync.TopicRunCompleted, treesync.RunEvent{
		RunID: "r1", Company: "Acme Corp", Site: "HQ",
		Trigger: "api", Added: 3, Updated: 1,
	}))

	mu.Lock()
	defer mu.Unlock()
	if len(forms) != 1 {
		t.Fatalf("relay received %d reports, want 1", len(forms))
	}
	form := forms[0]
	if got := form.Get("subject"); got != "Tree sync report - Acme Corp at HQ" {
		t.Errorf("subject = %q", got)
	}
	if got := form.Get("to"); got != "noc@example.com" {
		t.Errorf("to = %q, want noc@example.com", got)
	}
	if got := form.Get("report_name"); got != "tree-sync" {
		t.Errorf("report_name = %q, want tree-sync", got)
	}
	if body := form.Get("body"); !strings.Contains(body, "Added: 3") {
		t.Errorf("body missing added counter:\n%s", body)
	}
}

func TestHandleRun_IncludesDeviceRows(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		bodies = append(bodies, r.PostForm.Get("body"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hist := &fakeHistory{devices: []treesync.RunDevice{
		{RunID: "r1", Action: "added", Name: "core-switch",
			DeviceURL: "https://prtg.example.com/device.htm?id=1007",
			ItemLink:  "https://snow.example.com/ci/ci1"},
		{RunID: "r1", Action: "deleted", Name: "old-router"},
	}}
	m := newEmailModule(srv.URL)
	m.runs = hist

	m.handleRun(context.Background(), runEvent(treesync.TopicRunCompleted, treesync.RunEvent{
		RunID: "r1", Company: "Acme Corp", Site: "HQ", Added: 1, Deleted: 1,
	}))

	if hist.gotRun != "r1" {
		t.Errorf("history queried for run %q, want r1", hist.gotRun)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("relay received %d reports, want 1", len(bodies))
	}
	for _, want := range []string{
		"Added devices:",
		"core-switch",
		"monitoring: https://prtg.example.com/device.htm?id=1007",
		"cmdb: https://snow.example.com/ci/ci1",
		"Deleted devices:",
		"old-router",
	} {
		if !strings.Contains(bodies[0], want) {
			t.Errorf("body missing %q:\n%s", want, bodies[0])
		}
	}
}

func TestHandleRun_DeliversWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if got := r.Header.Get("User-Agent"); got != "Treeline-Report/1.0" {
			t.Errorf("User-Agent = %q, want Treeline-Report/1.0", got)
		}
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()
	m.cfg.Webhook.URL = srv.URL
	m.client = &http.Client{Timeout: 5 * time.Second}

	m.handleRun(context.Background(), runEvent(treesync.TopicRunFailed, treesync.RunEvent{
		RunID: "r9", Company: "Acme Corp", Site: "HQ", Error: "root mismatch",
	}))

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d webhooks, want 1", len(received))
	}
	if received[0].Event != treesync.TopicRunFailed {
		t.Errorf("event = %q, want %q", received[0].Event, treesync.TopicRunFailed)
	}
	if received[0].Source != "treesync" {
		t.Errorf("source = %q, want treesync", received[0].Source)
	}
	data, ok := received[0].Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", received[0].Data)
	}
	if data["company"] != "Acme Corp" {
		t.Errorf("data.company = %v, want Acme Corp", data["company"])
	}
}

func TestHandleRun_SkipsWhenDisabled(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newEmailModule(srv.URL)
	m.cfg.Enabled = false
	m.handleRun(context.Background(), runEvent(treesync.TopicRunCompleted, treesync.RunEvent{
		Company: "Acme Corp", Site: "HQ",
	}))

	if called {
		t.Error("expected no delivery when disabled")
	}
}

func TestHandleRun_NoTargets(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Should not panic with neither email nor webhook configured.
	m.handleRun(context.Background(), runEvent(treesync.TopicRunCompleted, treesync.RunEvent{
		Company: "Acme Corp", Site: "HQ",
	}))
}

func TestHandleRun_RelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Delivery failure is logged, not propagated.
	m := newEmailModule(srv.URL)
	m.handleRun(context.Background(), runEvent(treesync.TopicRunCompleted, treesync.RunEvent{
		Company: "Acme Corp", Site: "HQ",
	}))
}

func TestHandleFieldCheck(t *testing.T) {
	var mu sync.Mutex
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		forms = append(forms, r.PostForm)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newEmailModule(srv.URL)
	m.handleFieldCheck(context.Background(), plugin.Event{
		Topic:     treesync.TopicFieldCheckFailed,
		Source:    "treesync",
		Timestamp: time.Now(),
		Payload: treesync.FieldCheckEvent{
			Company: "Acme Corp", Site: "HQ",
			Items: 12, Errors: 3, Warnings: 1,
		},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(forms) != 1 {
		t.Fatalf("relay received %d reports, want 1", len(forms))
	}
	if got := forms[0].Get("subject"); got != "Field check failed - Acme Corp at HQ" {
		t.Errorf("subject = %q", got)
	}
	if got := forms[0].Get("report_name"); got != "field-check" {
		t.Errorf("report_name = %q, want field-check", got)
	}
	if body := forms[0].Get("body"); !strings.Contains(body, "Errors: 3") {
		t.Errorf("body missing error counter:\n%s", body)
	}
}

func TestHandleRun_IgnoresForeignPayload(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newEmailModule(srv.URL)
	m.handleRun(context.Background(), plugin.Event{
		Topic:     treesync.TopicRunCompleted,
		Source:    "treesync",
		Timestamp: time.Now(),
		Payload:   "not a run event",
	})

	if called {
		t.Error("expected no delivery for a foreign payload")
	}
}

// newEmailModule builds a module with only the email relay configured.
func newEmailModule(relayURL string) *Module {
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()
	m.cfg.Email = EmailConfig{URL: relayURL, Key: "s3cret", To: "noc@example.com"}
	m.client = &http.Client{Timeout: 5 * time.Second}
	m.email = NewEmailClient(relayURL, "s3cret", m.client)
	return m
}

func runEvent(topic string, payload treesync.RunEvent) plugin.Event {
	return plugin.Event{
		Topic:     topic,
		Source:    "treesync",
		Timestamp: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
}

type fakeHistory struct {
	devices []treesync.RunDevice
	err     error
	gotRun  string
}

func (f *fakeHistory) RunDevices(_ context.Context, runID string) ([]treesync.RunDevice, error) {
	f.gotRun = runID
	return f.devices, f.err
}

type fakeResolver struct {
	plugins map[string]plugin.Plugin
}

func (r *fakeResolver) Resolve(name string) (plugin.Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

func (r *fakeResolver) ResolveByRole(string) []plugin.Plugin { return nil }
