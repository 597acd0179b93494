package treesync

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/snow"
)

func fieldCheckEngine(inv Inventory, cfg Config) *Engine {
	return NewEngine(inv, newFakeMonitoring(&callLog{}), cfg, zap.NewNop())
}

func issueFields(issues []FieldIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Field
	}
	return out
}

func TestFieldCheck_Clean(t *testing.T) {
	inv := &fakeInventory{log: &callLog{}, company: testCompany(), location: testLocation(), items: testItems()}
	e := fieldCheckEngine(inv, DefaultConfig())

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.Company != "Acme Corp" || r.Site != "HQ" || r.Items != 3 {
		t.Errorf("report header = %s/%s items %d", r.Company, r.Site, r.Items)
	}
	if len(r.Errors) != 0 || len(r.Warnings) != 0 {
		t.Errorf("errors = %v, warnings = %v, want none", r.Errors, r.Warnings)
	}
	if !r.OK {
		t.Error("clean inventory reported not OK")
	}
}

func TestFieldCheck_MissingEverything(t *testing.T) {
	inv := &fakeInventory{
		log: &callLog{}, company: testCompany(), location: testLocation(),
		items: []snow.ConfigItem{{ID: "x1"}},
	}
	e := fieldCheckEngine(inv, DefaultConfig())

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	r := reports[0]
	if r.OK {
		t.Error("empty record reported OK")
	}
	wantErrs := []string{"name", "stage", "manufacturer", "ip_address", "model_number"}
	gotErrs := issueFields(r.Errors)
	if len(gotErrs) != len(wantErrs) {
		t.Fatalf("errors = %v, want %v", gotErrs, wantErrs)
	}
	for i := range wantErrs {
		if gotErrs[i] != wantErrs[i] {
			t.Errorf("errors[%d] = %q, want %q", i, gotErrs[i], wantErrs[i])
		}
	}
	if got := issueFields(r.Warnings); len(got) != 1 || got[0] != "category" {
		t.Errorf("warnings = %v, want [category]", got)
	}
	// A nameless record is reported by id.
	if r.Errors[0].Item != "x1" {
		t.Errorf("issue item = %q, want the record id", r.Errors[0].Item)
	}
}

func TestFieldCheck_VirtualizationExempt(t *testing.T) {
	inv := &fakeInventory{
		log: &callLog{}, company: testCompany(), location: testLocation(),
		items: []snow.ConfigItem{{
			ID: "v1", Name: "esx-host", Stage: "Production", Category: "Virtualization",
		}},
	}
	e := fieldCheckEngine(inv, DefaultConfig())

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	r := reports[0]
	if !r.OK || len(r.Errors) != 0 {
		t.Errorf("virtualization record errors = %v, want none", r.Errors)
	}
}

func TestFieldCheck_PingWarning(t *testing.T) {
	inv := &fakeInventory{log: &callLog{}, company: testCompany(), location: testLocation(), items: testItems()}
	cfg := DefaultConfig()
	cfg.FieldCheckPing = true
	e := fieldCheckEngine(inv, cfg)

	var pinged []string
	e.pingFunc = func(_ context.Context, addr string) bool {
		pinged = append(pinged, addr)
		return false
	}

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	r := reports[0]
	if !r.OK {
		t.Error("unreachable addresses must warn, not fail")
	}
	if len(r.Warnings) != 3 {
		t.Fatalf("warnings = %v, want 3 ping warnings", r.Warnings)
	}
	for _, w := range r.Warnings {
		if w.Field != "ip_address" || w.Detail != "no ICMP reply" {
			t.Errorf("warning = %+v", w)
		}
	}
	if len(pinged) != 3 || pinged[0] != "10.0.0.1" || pinged[2] != "10.0.0.9" {
		t.Errorf("pinged = %v", pinged)
	}
}

func TestFieldCheck_PingOffByDefault(t *testing.T) {
	inv := &fakeInventory{log: &callLog{}, company: testCompany(), location: testLocation(), items: testItems()}
	e := fieldCheckEngine(inv, DefaultConfig())
	e.pingFunc = func(context.Context, string) bool {
		t.Error("pingFunc called with FieldCheckPing off")
		return false
	}

	if _, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ"); err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
}

func TestFieldCheck_HostnameTemplate(t *testing.T) {
	company := testCompany()
	company.NameFormat = snow.NameManufacturerHostIP
	inv := &fakeInventory{
		log: &callLog{}, company: company, location: testLocation(),
		items: []snow.ConfigItem{{
			ID: "ci1", Name: "core-switch", IPAddress: "10.0.0.1",
			Manufacturer: &snow.Manufacturer{Name: "Cisco"}, ModelNumber: "C9300",
			Stage: "Production", Category: "Network",
		}},
	}
	e := fieldCheckEngine(inv, DefaultConfig())

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "HQ")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	r := reports[0]
	if got := issueFields(r.Warnings); len(got) != 1 || got[0] != "host_name" {
		t.Errorf("warnings = %v, want [host_name]", got)
	}
	if !r.OK {
		t.Error("missing hostname must warn, not fail")
	}
}

func TestFieldCheck_AllLocations(t *testing.T) {
	inv := &fakeInventory{
		log: &callLog{}, company: testCompany(), location: testLocation(),
		locations: []snow.Location{
			{ID: "l1", Name: "HQ"},
			{ID: "l2", Name: "Warehouse"},
		},
		items: testItems(),
	}
	e := fieldCheckEngine(inv, DefaultConfig())

	reports, err := e.FieldCheck(context.Background(), "Acme Corp", "")
	if err != nil {
		t.Fatalf("FieldCheck() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want one per location", len(reports))
	}
	if reports[0].Site != "HQ" || reports[1].Site != "Warehouse" {
		t.Errorf("sites = %q, %q", reports[0].Site, reports[1].Site)
	}
}

func TestFieldCheck_UnknownCompany(t *testing.T) {
	inv := &fakeInventory{log: &callLog{}, company: testCompany()}
	e := fieldCheckEngine(inv, DefaultConfig())

	_, err := e.FieldCheck(context.Background(), "Globex Corp", "")
	var nf *snow.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("FieldCheck() error = %v, want not-found", err)
	}
}
