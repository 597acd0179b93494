package treesync

import "fmt"

// RootMismatchError reports a configured root whose live name does not
// extend the expected root name. The run is rejected before any
// mutation: a wrong root id would rebuild one customer's tree inside
// another customer's subtree.
type RootMismatchError struct {
	Expected string
	Current  string
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("root mismatch: platform root %q does not extend expected %q", e.Current, e.Expected)
}

// ValidationError reports an inventory record that cannot become a
// monitoring device. The record is skipped; the run continues.
type ValidationError struct {
	Item  string // record name, or sys_id when unnamed
	Field string // offending field
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config item %q: missing %s", e.Item, e.Field)
}

// FieldCheckError aborts a sync whose preflight audit found records
// with hard field errors. The report carries the full issue list.
type FieldCheckError struct {
	Report *FieldCheckReport
}

func (e *FieldCheckError) Error() string {
	return fmt.Sprintf("field check failed: %d errors across %d records", len(e.Report.Errors), e.Report.Items)
}
