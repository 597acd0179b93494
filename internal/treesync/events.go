package treesync

// Event topics published on the bus. Run-level events carry RunEvent
// payloads; object-level events carry ObjectEvent payloads.
const (
	TopicRunStarted   = "treesync.run.started"
	TopicRunCompleted = "treesync.run.completed"
	TopicRunFailed    = "treesync.run.failed"

	TopicDeviceAdded   = "treesync.device.added"
	TopicDeviceUpdated = "treesync.device.updated"
	TopicDeviceMoved   = "treesync.device.moved"
	TopicDeviceDeleted = "treesync.device.deleted"

	TopicGroupCreated = "treesync.group.created"
	TopicGroupPruned  = "treesync.group.pruned"

	TopicFieldCheckFailed = "treesync.fieldcheck.failed"
)

// RunEvent is the payload for run lifecycle topics.
type RunEvent struct {
	RunID   string `json:"run_id"`
	Company string `json:"company"`
	Site    string `json:"site"`
	Trigger string `json:"trigger"`
	DryRun  bool   `json:"dry_run"`
	Added   int    `json:"added"`
	Deleted int    `json:"deleted"`
	Updated int    `json:"updated"`
	Moved   int    `json:"moved"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// ObjectEvent is the payload for device and group topics.
type ObjectEvent struct {
	Name       string `json:"name"`
	PlatformID int    `json:"platform_id"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// FieldCheckEvent is the payload for failed preflight audits.
type FieldCheckEvent struct {
	Company  string `json:"company"`
	Site     string `json:"site"`
	Items    int    `json:"items"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
}
