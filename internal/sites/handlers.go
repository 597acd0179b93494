package sites

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an RFC 7807 problem detail response.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	slug := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "-"))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://treeline.dev/problems/" + slug,
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

// SiteRequest is the request body for creating or updating a binding.
type SiteRequest struct {
	Company       string `json:"company" example:"Acme Corp"`
	Location      string `json:"location" example:"HQ"`
	RootID        int    `json:"root_id" example:"2001"`
	RootIsSite    bool   `json:"root_is_site"`
	DeleteEnabled bool   `json:"delete_enabled"`
	Enabled       *bool  `json:"enabled,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (r *SiteRequest) validate() string {
	if strings.TrimSpace(r.Company) == "" {
		return "company is required"
	}
	if strings.TrimSpace(r.Location) == "" {
		return "location is required"
	}
	if r.RootID <= 0 {
		return "root_id must be a positive object id"
	}
	return ""
}

// handleList returns all site bindings.
//
//	@Summary		List sites
//	@Description	List every site binding, enabled or not.
//	@Tags			sites
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		Site
//	@Failure		500	{object}	models.APIProblem
//	@Router			/sites [get]
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage unavailable")
		return
	}
	out, err := m.store.ListSites(r.Context())
	if err != nil {
		m.logger.Error("list sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if out == nil {
		out = []Site{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGet returns one site binding.
//
//	@Summary		Get site
//	@Tags			sites
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Site ID"
//	@Success		200	{object}	Site
//	@Failure		404	{object}	models.APIProblem
//	@Router			/sites/{id} [get]
func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage unavailable")
		return
	}
	site, err := m.store.GetSite(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no such site")
			return
		}
		m.logger.Error("get site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// handleCreate registers a site binding.
//
//	@Summary		Create site
//	@Description	Bind a company location to a monitoring subtree root.
//	@Tags			sites
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		SiteRequest	true	"Site binding"
//	@Success		201		{object}	Site
//	@Failure		400		{object}	models.APIProblem
//	@Failure		409		{object}	models.APIProblem
//	@Router			/sites [post]
func (m *Module) handleCreate(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage unavailable")
		return
	}
	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	site := &Site{
		Company:       strings.TrimSpace(req.Company),
		Location:      strings.TrimSpace(req.Location),
		RootID:        req.RootID,
		RootIsSite:    req.RootIsSite,
		DeleteEnabled: req.DeleteEnabled,
		Enabled:       true,
		Notes:         req.Notes,
	}
	if req.Enabled != nil {
		site.Enabled = *req.Enabled
	}
	if err := m.store.CreateSite(r.Context(), site); err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "site binding already exists for this company and location")
			return
		}
		m.logger.Error("create site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create site")
		return
	}
	m.logger.Info("site created",
		zap.String("id", site.ID),
		zap.String("company", site.Company),
		zap.String("location", site.Location),
		zap.Int("root_id", site.RootID))
	writeJSON(w, http.StatusCreated, site)
}

// handleUpdate rewrites a site binding.
//
//	@Summary		Update site
//	@Tags			sites
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string		true	"Site ID"
//	@Param			request	body		SiteRequest	true	"Site binding"
//	@Success		200		{object}	Site
//	@Failure		400		{object}	models.APIProblem
//	@Failure		404		{object}	models.APIProblem
//	@Router			/sites/{id} [put]
func (m *Module) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage unavailable")
		return
	}
	site, err := m.store.GetSite(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no such site")
			return
		}
		m.logger.Error("get site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load site")
		return
	}

	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	site.Company = strings.TrimSpace(req.Company)
	site.Location = strings.TrimSpace(req.Location)
	site.RootID = req.RootID
	site.RootIsSite = req.RootIsSite
	site.DeleteEnabled = req.DeleteEnabled
	site.Notes = req.Notes
	if req.Enabled != nil {
		site.Enabled = *req.Enabled
	}
	if err := m.store.UpdateSite(r.Context(), site); err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "site binding already exists for this company and location")
			return
		}
		m.logger.Error("update site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update site")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// handleDelete removes a site binding.
//
//	@Summary		Delete site
//	@Tags			sites
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Site ID"
//	@Success		204	"Deleted"
//	@Failure		404	{object}	models.APIProblem
//	@Router			/sites/{id} [delete]
func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "site storage unavailable")
		return
	}
	if err := m.store.DeleteSite(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no such site")
			return
		}
		m.logger.Error("delete site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete site")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isUniqueViolation matches the sqlite unique-constraint failure. The
// driver has no typed error for it, so the message is the contract.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
