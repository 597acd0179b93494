package treesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run triggers.
const (
	TriggerAPI      = "api"
	TriggerAll      = "all"
	TriggerSchedule = "schedule"
)

// Run is one recorded sync execution.
type Run struct {
	ID            string `json:"id"`
	Company       string `json:"company"`
	Site          string `json:"site"`
	RootID        int    `json:"root_id"`
	Trigger       string `json:"trigger"`
	DryRun        bool   `json:"dry_run"`
	Delete        bool   `json:"delete"`
	Status        string `json:"status"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
	Added         int    `json:"added"`
	Deleted       int    `json:"deleted"`
	Updated       int    `json:"updated"`
	Moved         int    `json:"moved"`
	GroupsCreated int    `json:"groups_created"`
	GroupsPruned  int    `json:"groups_pruned"`
	Skipped       int    `json:"skipped"`
	Error         string `json:"error,omitempty"`
}

// RunDevice is one device created or removed during a run.
type RunDevice struct {
	RunID      string `json:"run_id"`
	Action     string `json:"action"`
	Name       string `json:"name"`
	PlatformID int    `json:"platform_id"`
	DeviceURL  string `json:"device_url,omitempty"`
	ItemLink   string `json:"item_link,omitempty"`
}

// RunStore persists run history.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a store backed by the shared database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun inserts a new run in running state, assigning id and start
// time when absent.
func (s *RunStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt == "" {
		run.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treesync_runs (id, company, site, root_id, trigger_kind, dry_run, delete_enabled, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Company, run.Site, run.RootID, run.Trigger, run.DryRun, run.Delete, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *RunStore) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt == "" {
		run.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE treesync_runs
		SET status = ?, finished_at = ?, added = ?, deleted = ?, updated = ?, moved = ?,
		    groups_created = ?, groups_pruned = ?, skipped = ?, error_msg = ?
		WHERE id = ?`,
		run.Status, run.FinishedAt, run.Added, run.Deleted, run.Updated, run.Moved,
		run.GroupsCreated, run.GroupsPruned, run.Skipped, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddRunDevices records the per-device changes of a run.
func (s *RunStore) AddRunDevices(ctx context.Context, runID, action string, changes []DeviceChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run devices: %w", err)
	}
	defer tx.Rollback()
	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO treesync_run_devices (run_id, action, name, platform_id, device_url, item_link)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, action, c.Name, c.PlatformID, c.DeviceURL, c.ItemLink,
		); err != nil {
			return fmt.Errorf("insert run device: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun returns one run by id.
func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company, site, root_id, trigger_kind, dry_run, delete_enabled, status,
		       started_at, finished_at, added, deleted, updated, moved,
		       groups_created, groups_pruned, skipped, error_msg
		FROM treesync_runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// LastRun returns the most recently started run, or nil when none exist.
func (s *RunStore) LastRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company, site, root_id, trigger_kind, dry_run, delete_enabled, status,
		       started_at, finished_at, added, deleted, updated, moved,
		       groups_created, groups_pruned, skipped, error_msg
		FROM treesync_runs ORDER BY started_at DESC, id LIMIT 1`,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by company
// and site.
func (s *RunStore) ListRuns(ctx context.Context, company, site string, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "1=1"
	args := []any{}
	if company != "" {
		where += " AND company = ?"
		args = append(args, company)
	}
	if site != "" {
		where += " AND site = ?"
		args = append(args, site)
	}
	args = append(args, limit, offset)
	//nolint:gosec // where is assembled from fixed fragments; values ride placeholders
	query := `
		SELECT id, company, site, root_id, trigger_kind, dry_run, delete_enabled, status,
		       started_at, finished_at, added, deleted, updated, moved,
		       groups_created, groups_pruned, skipped, error_msg
		FROM treesync_runs WHERE ` + where + `
		ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRunDevices returns a run's device changes in insertion order.
func (s *RunStore) ListRunDevices(ctx context.Context, runID string) ([]RunDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, action, name, platform_id, device_url, item_link
		FROM treesync_run_devices WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run devices: %w", err)
	}
	defer rows.Close()

	var devices []RunDevice
	for rows.Next() {
		var d RunDevice
		if err := rows.Scan(&d.RunID, &d.Action, &d.Name, &d.PlatformID, &d.DeviceURL, &d.ItemLink); err != nil {
			return nil, fmt.Errorf("scan run device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Prune drops the oldest runs beyond keep. Device rows go with them via
// the cascade.
func (s *RunStore) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM treesync_runs WHERE id NOT IN (
			SELECT id FROM treesync_runs ORDER BY started_at DESC, id LIMIT ?
		)`, keep,
	)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var finished sql.NullString
	err := row.Scan(
		&run.ID, &run.Company, &run.Site, &run.RootID, &run.Trigger, &run.DryRun, &run.Delete, &run.Status,
		&run.StartedAt, &finished, &run.Added, &run.Deleted, &run.Updated, &run.Moved,
		&run.GroupsCreated, &run.GroupsPruned, &run.Skipped, &run.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = finished.String
	}
	return &run, nil
}
