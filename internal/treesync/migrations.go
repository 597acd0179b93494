package treesync

import (
	"database/sql"

	"github.com/HerbHall/treeline/pkg/plugin"
)

// migrations returns the treesync module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create treesync tables (runs, run_devices)",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE treesync_runs (
						id             TEXT PRIMARY KEY,
						company        TEXT NOT NULL,
						site           TEXT NOT NULL,
						root_id        INTEGER NOT NULL,
						trigger_kind   TEXT NOT NULL DEFAULT 'api',
						dry_run        BOOLEAN NOT NULL DEFAULT 0,
						delete_enabled BOOLEAN NOT NULL DEFAULT 0,
						status         TEXT NOT NULL DEFAULT 'running',
						started_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						finished_at    DATETIME,
						added          INTEGER NOT NULL DEFAULT 0,
						deleted        INTEGER NOT NULL DEFAULT 0,
						updated        INTEGER NOT NULL DEFAULT 0,
						moved          INTEGER NOT NULL DEFAULT 0,
						groups_created INTEGER NOT NULL DEFAULT 0,
						groups_pruned  INTEGER NOT NULL DEFAULT 0,
						skipped        INTEGER NOT NULL DEFAULT 0,
						error_msg      TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_treesync_runs_started ON treesync_runs(started_at)`,
					`CREATE INDEX idx_treesync_runs_site ON treesync_runs(company, site)`,
					`CREATE TABLE treesync_run_devices (
						run_id      TEXT NOT NULL REFERENCES treesync_runs(id) ON DELETE CASCADE,
						action      TEXT NOT NULL,
						name        TEXT NOT NULL,
						platform_id INTEGER NOT NULL,
						device_url  TEXT NOT NULL DEFAULT '',
						item_link   TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_treesync_run_devices_run ON treesync_run_devices(run_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
