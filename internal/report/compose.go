package report

import (
	"fmt"
	"strings"

	"github.com/HerbHall/treeline/internal/treesync"
)

func runSubject(run treesync.RunEvent) string {
	switch {
	case run.Error != "":
		return fmt.Sprintf("Tree sync failed - %s at %s", run.Company, run.Site)
	case run.DryRun:
		return fmt.Sprintf("Tree sync preview - %s at %s", run.Company, run.Site)
	default:
		return fmt.Sprintf("Tree sync report - %s at %s", run.Company, run.Site)
	}
}

// runBody renders the plain-text run summary: outcome line, change
// counters, then per-device sections when run history is available.
func runBody(run treesync.RunEvent, devices []treesync.RunDevice) string {
	var b strings.Builder
	if run.Error != "" {
		fmt.Fprintf(&b, "Tree sync for %s at %s failed: %s\n", run.Company, run.Site, run.Error)
	} else {
		fmt.Fprintf(&b, "Tree sync for %s at %s completed.\n", run.Company, run.Site)
	}
	if run.DryRun {
		b.WriteString("Dry run: no changes were written to the monitoring platform.\n")
	}
	if run.Trigger != "" {
		fmt.Fprintf(&b, "Trigger: %s\n", run.Trigger)
	}
	if run.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", run.RunID)
	}

	fmt.Fprintf(&b, "\nAdded: %d\nDeleted: %d\nUpdated: %d\nMoved: %d\nSkipped: %d\n",
		run.Added, run.Deleted, run.Updated, run.Moved, run.Skipped)

	appendDeviceSection(&b, "Added devices", filterDevices(devices, "added"))
	appendDeviceSection(&b, "Deleted devices", filterDevices(devices, "deleted"))
	return b.String()
}

func fieldCheckSubject(check treesync.FieldCheckEvent) string {
	return fmt.Sprintf("Field check failed - %s at %s", check.Company, check.Site)
}

func fieldCheckBody(check treesync.FieldCheckEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The preflight field check for %s at %s blocked the sync.\n\n",
		check.Company, check.Site)
	fmt.Fprintf(&b, "Items checked: %d\nErrors: %d\nWarnings: %d\n",
		check.Items, check.Errors, check.Warnings)
	b.WriteString("\nFill in the missing configuration item fields and run the sync again.\n")
	return b.String()
}

func filterDevices(devices []treesync.RunDevice, action string) []treesync.RunDevice {
	var out []treesync.RunDevice
	for _, d := range devices {
		if d.Action == action {
			out = append(out, d)
		}
	}
	return out
}

func appendDeviceSection(b *strings.Builder, title string, devices []treesync.RunDevice) {
	if len(devices) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, d := range devices {
		fmt.Fprintf(b, "  - %s\n", d.Name)
		if d.DeviceURL != "" {
			fmt.Fprintf(b, "      monitoring: %s\n", d.DeviceURL)
		}
		if d.ItemLink != "" {
			fmt.Fprintf(b, "      cmdb: %s\n", d.ItemLink)
		}
	}
}
