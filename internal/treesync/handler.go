package treesync

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
	"github.com/HerbHall/treeline/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/sync", Handler: m.handleSync},
		{Method: http.MethodPost, Path: "/sync/all", Handler: m.handleSyncAll},
		{Method: http.MethodGet, Path: "/runs", Handler: m.handleListRuns},
		{Method: http.MethodGet, Path: "/runs/{id}", Handler: m.handleGetRun},
		{Method: http.MethodGet, Path: "/runs/{id}/devices", Handler: m.handleRunDevices},
		{Method: http.MethodGet, Path: "/fieldcheck", Handler: m.handleFieldCheck},
		{Method: http.MethodGet, Path: "/status", Handler: m.handleStatus},
	}
}

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

// statusFromError maps sync failures onto HTTP statuses: unknown
// company or location and failed preflights are caller errors, a
// missing root is 404, a mismatched root 409, and upstream retry
// exhaustion 502.
func statusFromError(err error) int {
	var (
		nfSnow *snow.NotFoundError
		amb    *snow.AmbiguousError
		nfPrtg *prtg.NotFoundError
		rm     *RootMismatchError
		fce    *FieldCheckError
		stSnow *snow.TransientError
		stPrtg *prtg.TransientError
	)
	switch {
	case errors.As(err, &nfSnow), errors.As(err, &amb), errors.As(err, &fce), errors.Is(err, ErrNoItems):
		return http.StatusBadRequest
	case errors.As(err, &nfPrtg):
		return http.StatusNotFound
	case errors.As(err, &rm):
		return http.StatusConflict
	case errors.As(err, &stSnow), errors.As(err, &stPrtg):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// SyncResponse is the response for POST /sync.
type SyncResponse struct {
	Run    *Run    `json:"run"`
	Result *Result `json:"result"`
}

// handleSync reconciles one site synchronously.
//
//	@Summary		Sync one site
//	@Description	Build the expected tree from the CMDB and converge the platform subtree onto it. Returns when the run finishes.
//	@Tags			treesync
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		SyncRequest	true	"Site to sync"
//	@Success		200		{object}	SyncResponse
//	@Failure		400		{object}	models.APIProblem	"Unknown company or location, or failed field check"
//	@Failure		404		{object}	models.APIProblem	"Root object not found"
//	@Failure		409		{object}	models.APIProblem	"Root mismatch or sync already running"
//	@Failure		502		{object}	models.APIProblem	"Upstream unreachable"
//	@Router			/treesync/sync [post]
func (m *Module) handleSync(w http.ResponseWriter, r *http.Request) {
	if m.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "inventory or platform connection not configured")
		return
	}
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := siteKey(req.Company, req.Site)
	if _, busy := m.inflight.LoadOrStore(key, struct{}{}); busy {
		writeError(w, http.StatusConflict, "a sync for this site is already running")
		return
	}
	defer m.inflight.Delete(key)
	sitesInFlight.Inc()
	defer sitesInFlight.Dec()

	run, res, err := m.runSite(r.Context(), req, TriggerAPI)
	if err != nil {
		writeError(w, statusFromError(err), err.Error()+" (run "+run.ID+")")
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Run: run, Result: res})
}

// handleSyncAll queues a sync for every enabled site binding.
//
//	@Summary		Sync all sites
//	@Description	Queue one sync per enabled site binding. Runs execute on a bounded worker pool; busy sites are skipped.
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Success		202	{object}	map[string]int	"Number of sites queued"
//	@Failure		503	{object}	models.APIProblem
//	@Router			/treesync/sync/all [post]
func (m *Module) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if m.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "inventory or platform connection not configured")
		return
	}
	if m.sites == nil {
		writeError(w, http.StatusServiceUnavailable, "sites plugin unavailable")
		return
	}
	queued := m.syncAll(TriggerAll)
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

// handleListRuns returns run history, newest first.
//
//	@Summary		List runs
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Param			company	query		string	false	"Filter by company"
//	@Param			site	query		string	false	"Filter by site"
//	@Param			limit	query		int		false	"Page size (default 50)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{array}		Run
//	@Failure		500		{object}	models.APIProblem
//	@Router			/treesync/runs [get]
func (m *Module) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage unavailable")
		return
	}
	runs, err := m.store.ListRuns(r.Context(),
		r.URL.Query().Get("company"),
		r.URL.Query().Get("site"),
		queryInt(r, "limit", 50),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		m.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one run.
//
//	@Summary		Get run
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	Run
//	@Failure		404	{object}	models.APIProblem
//	@Router			/treesync/runs/{id} [get]
func (m *Module) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage unavailable")
		return
	}
	run, err := m.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no such run")
			return
		}
		m.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunDevices returns the device changes of one run.
//
//	@Summary		List run devices
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{array}		RunDevice
//	@Failure		404	{object}	models.APIProblem
//	@Router			/treesync/runs/{id}/devices [get]
func (m *Module) handleRunDevices(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage unavailable")
		return
	}
	id := r.PathValue("id")
	if _, err := m.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no such run")
			return
		}
		m.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	devices, err := m.store.ListRunDevices(r.Context(), id)
	if err != nil {
		m.logger.Error("list run devices failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run devices")
		return
	}
	if devices == nil {
		devices = []RunDevice{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleFieldCheck audits inventory records without syncing.
//
//	@Summary		Field check
//	@Description	Audit the inventory records behind a site (or every site of a company) for the fields a sync needs.
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Param			company	query		string	true	"Company name"
//	@Param			site	query		string	false	"Site name; empty audits all company locations"
//	@Success		200		{object}	map[string][]FieldCheckReport
//	@Failure		400		{object}	models.APIProblem
//	@Failure		502		{object}	models.APIProblem
//	@Router			/treesync/fieldcheck [get]
func (m *Module) handleFieldCheck(w http.ResponseWriter, r *http.Request) {
	if m.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "inventory or platform connection not configured")
		return
	}
	company := r.URL.Query().Get("company")
	if company == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	reports, err := m.engine.FieldCheck(r.Context(), company, r.URL.Query().Get("site"))
	if err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]FieldCheckReport{"reports": reports})
}

// StatusResponse is the response for GET /status.
type StatusResponse struct {
	Configured bool     `json:"configured"`
	Schedule   string   `json:"schedule,omitempty"`
	Workers    int      `json:"workers"`
	InFlight   []string `json:"in_flight"`
	LastRun    *Run     `json:"last_run,omitempty"`
}

// handleStatus reports engine configuration and activity.
//
//	@Summary		Sync status
//	@Tags			treesync
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	StatusResponse
//	@Router			/treesync/status [get]
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Configured: m.engine != nil,
		Schedule:   m.cfg.Schedule,
		Workers:    m.cfg.Workers,
		InFlight:   []string{},
	}
	m.inflight.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			resp.InFlight = append(resp.InFlight, s)
		}
		return true
	})
	if m.store != nil {
		last, err := m.store.LastRun(r.Context())
		if err != nil {
			m.logger.Warn("load last run failed", zap.Error(err))
		} else {
			resp.LastRun = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
