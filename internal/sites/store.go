package sites

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Site binds one company location to a monitoring subtree root.
type Site struct {
	ID      string `json:"id"`
	Company string `json:"company"`
	// Location is the CMDB location name; together with Company it
	// selects the config items behind the site.
	Location string `json:"location"`
	// RootID is the platform group or probe the subtree hangs under.
	RootID int `json:"root_id"`
	// RootIsSite collapses the company and site levels into the root.
	RootIsSite bool `json:"root_is_site"`
	// DeleteEnabled lets scheduled syncs remove decommissioned devices.
	DeleteEnabled bool   `json:"delete_enabled"`
	Enabled       bool   `json:"enabled"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	LastRunAt     string `json:"last_run_at,omitempty"`
	LastStatus    string `json:"last_status,omitempty"`
}

// SiteStore persists site bindings.
type SiteStore struct {
	db *sql.DB
}

// NewSiteStore creates a store backed by the shared database.
func NewSiteStore(db *sql.DB) *SiteStore {
	return &SiteStore{db: db}
}

// CreateSite inserts a binding, assigning id and timestamps.
func (s *SiteStore) CreateSite(ctx context.Context, site *Site) error {
	if site.ID == "" {
		site.ID = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	site.CreatedAt = now
	site.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (id, company, location, root_id, root_is_site, delete_enabled, enabled, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID, site.Company, site.Location, site.RootID, site.RootIsSite, site.DeleteEnabled, site.Enabled, site.Notes, site.CreatedAt, site.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// UpdateSite rewrites the mutable fields of a binding.
func (s *SiteStore) UpdateSite(ctx context.Context, site *Site) error {
	site.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE sites
		SET company = ?, location = ?, root_id = ?, root_is_site = ?, delete_enabled = ?, enabled = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		site.Company, site.Location, site.RootID, site.RootIsSite, site.DeleteEnabled, site.Enabled, site.Notes, site.UpdatedAt, site.ID,
	)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSite removes a binding.
func (s *SiteStore) DeleteSite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSite returns one binding by id.
func (s *SiteStore) GetSite(ctx context.Context, id string) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company, location, root_id, root_is_site, delete_enabled, enabled, notes,
		       created_at, updated_at, last_run_at, last_status
		FROM sites WHERE id = ?`, id,
	)
	return scanSite(row)
}

// ListSites returns all bindings ordered by company then location.
func (s *SiteStore) ListSites(ctx context.Context) ([]Site, error) {
	return s.list(ctx, `
		SELECT id, company, location, root_id, root_is_site, delete_enabled, enabled, notes,
		       created_at, updated_at, last_run_at, last_status
		FROM sites ORDER BY company, location`)
}

// ListEnabled returns the bindings scheduled syncs walk.
func (s *SiteStore) ListEnabled(ctx context.Context) ([]Site, error) {
	return s.list(ctx, `
		SELECT id, company, location, root_id, root_is_site, delete_enabled, enabled, notes,
		       created_at, updated_at, last_run_at, last_status
		FROM sites WHERE enabled = 1 ORDER BY company, location`)
}

// RecordRun stamps the outcome of the binding's latest sync.
func (s *SiteStore) RecordRun(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sites SET last_run_at = ?, last_status = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, id,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *SiteStore) list(ctx context.Context, query string) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *site)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*Site, error) {
	var site Site
	var lastRunAt, lastStatus sql.NullString
	err := row.Scan(
		&site.ID, &site.Company, &site.Location, &site.RootID, &site.RootIsSite,
		&site.DeleteEnabled, &site.Enabled, &site.Notes,
		&site.CreatedAt, &site.UpdatedAt, &lastRunAt, &lastStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	if lastRunAt.Valid {
		site.LastRunAt = lastRunAt.String
	}
	if lastStatus.Valid {
		site.LastStatus = lastStatus.String
	}
	return &site, nil
}
