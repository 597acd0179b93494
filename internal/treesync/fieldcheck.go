package treesync

import (
	"context"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/HerbHall/treeline/internal/snow"
)

// FieldIssue flags one field on one inventory record.
type FieldIssue struct {
	Item   string `json:"item"`
	Field  string `json:"field"`
	Detail string `json:"detail,omitempty"`
	Link   string `json:"link,omitempty"`
}

// FieldCheckReport is the audit result for one site. Errors name fields
// the adapter cannot work without; warnings degrade the result but do
// not block a sync.
type FieldCheckReport struct {
	Company  string       `json:"company"`
	Site     string       `json:"site"`
	Items    int          `json:"items"`
	Errors   []FieldIssue `json:"errors"`
	Warnings []FieldIssue `json:"warnings"`
	OK       bool         `json:"ok"`
}

// FieldCheck audits the inventory records behind a site. With an empty
// site name every location of the company is audited.
func (e *Engine) FieldCheck(ctx context.Context, companyName, siteName string) ([]FieldCheckReport, error) {
	company, err := e.inv.GetCompany(ctx, companyName)
	if err != nil {
		return nil, err
	}
	var locations []snow.Location
	if siteName != "" {
		loc, err := e.inv.GetLocation(ctx, siteName)
		if err != nil {
			return nil, err
		}
		locations = []snow.Location{*loc}
	} else {
		locations, err = e.inv.GetCompanyLocations(ctx, companyName)
		if err != nil {
			return nil, err
		}
	}

	reports := make([]FieldCheckReport, 0, len(locations))
	for i := range locations {
		loc := &locations[i]
		items, err := e.inv.GetConfigItems(ctx, company, loc)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *e.checkItems(ctx, company, loc, items))
	}
	return reports, nil
}

// checkItems audits one site's records. Virtualization records are
// exempt from the manufacturer, address and model requirements, the
// same exemption the adapter applies.
func (e *Engine) checkItems(ctx context.Context, company *snow.Company, location *snow.Location, items []snow.ConfigItem) *FieldCheckReport {
	report := &FieldCheckReport{
		Company:  company.Name,
		Site:     location.Name,
		Items:    len(items),
		Errors:   []FieldIssue{},
		Warnings: []FieldIssue{},
	}
	for i := range items {
		item := &items[i]
		label := itemLabel(item)
		addErr := func(field, detail string) {
			report.Errors = append(report.Errors, FieldIssue{Item: label, Field: field, Detail: detail, Link: item.Link})
		}
		addWarn := func(field, detail string) {
			report.Warnings = append(report.Warnings, FieldIssue{Item: label, Field: field, Detail: detail, Link: item.Link})
		}

		if item.Name == "" {
			addErr("name", "record has no name")
		}
		if item.Stage == "" {
			addErr("stage", "required for tree placement")
		}
		exempt := item.Category == "Virtualization"
		if !exempt {
			if item.Manufacturer == nil || item.Manufacturer.Name == "" {
				addErr("manufacturer", "required for device naming")
			}
			if item.IPAddress == "" {
				addErr("ip_address", "required as the monitored address")
			} else if e.cfg.FieldCheckPing && !e.pingFunc(ctx, item.IPAddress) {
				addWarn("ip_address", "no ICMP reply")
			}
			if item.ModelNumber == "" {
				addErr("model_number", "required for device naming")
			}
		}
		if item.Category == "" {
			addWarn("category", "device lands directly under its stage group")
		}
		if company.NameFormat == snow.NameManufacturerHostIP && item.HostName == "" {
			addWarn("host_name", "hostname naming template falls back to the default")
		}
	}
	report.OK = len(report.Errors) == 0
	return report
}

// icmpPing sends a short unprivileged ping burst and reports whether
// any reply came back.
func icmpPing(ctx context.Context, addr string) bool {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return false
	}
	pinger.Count = 2
	pinger.Timeout = 3 * time.Second
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pinger.Run()
	}()
	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
	case <-done:
	}
	return pinger.Statistics().PacketsRecv > 0
}
