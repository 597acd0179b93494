package sites

import (
	"database/sql"

	"github.com/HerbHall/treeline/pkg/plugin"
)

// migrations returns the sites module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create sites table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE sites (
						id             TEXT PRIMARY KEY,
						company        TEXT NOT NULL,
						location       TEXT NOT NULL,
						root_id        INTEGER NOT NULL,
						root_is_site   BOOLEAN NOT NULL DEFAULT 0,
						delete_enabled BOOLEAN NOT NULL DEFAULT 0,
						enabled        BOOLEAN NOT NULL DEFAULT 1,
						notes          TEXT NOT NULL DEFAULT '',
						created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						last_run_at    DATETIME,
						last_status    TEXT
					)`,
					`CREATE UNIQUE INDEX idx_sites_binding ON sites(company, location)`,
					`CREATE INDEX idx_sites_enabled ON sites(enabled)`,
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
