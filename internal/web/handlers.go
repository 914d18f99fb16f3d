package web

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/engine"
	"github.com/relaynote/relaynote/internal/errors"
	"github.com/relaynote/relaynote/internal/release"
)

// Handlers contains HTTP route handlers for the sync API.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	engine  *engine.Engine
	fetcher engine.ReleaseFetcher
	version string
}

// syncRequest is the optional POST /sync body.
type syncRequest struct {
	MappingID string `json:"mappingId"`
	DryRun    bool   `json:"dryRun"`
}

// syncResponse is the envelope returned by both sync endpoints.
type syncResponse struct {
	Message   string             `json:"message"`
	CronLogID *int64             `json:"cronLogId"`
	Results   *engine.RunSummary `json:"results"`
}

// authorize checks the shared-secret bearer header. A server without a
// configured secret refuses everything rather than running open.
func (h *Handlers) authorize(r *http.Request) error {
	if h.cfg.SyncSecret == "" {
		return errors.NewUnauthorized()
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return errors.NewUnauthorized()
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.SyncSecret)) != 1 {
		return errors.NewUnauthorized()
	}
	return nil
}

// authorizeScheduled additionally accepts the trusted-scheduler header used
// by cron infrastructure that cannot set an Authorization header.
func (h *Handlers) authorizeScheduled(r *http.Request) error {
	if h.cfg.SyncSecret != "" {
		if tok := r.Header.Get("X-Scheduler-Token"); tok != "" &&
			subtle.ConstantTimeCompare([]byte(tok), []byte(h.cfg.SyncSecret)) == 1 {
			return nil
		}
	}
	return h.authorize(r)
}

// HandleSyncManual handles POST /sync — on-demand run with optional
// {mappingId, dryRun} body.
func (h *Handlers) HandleSyncManual(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	var req syncRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.NewInternal(err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, errors.NewValidation("request body must be JSON: "+err.Error()))
			return
		}
	}

	h.runSync(w, r, engine.RunInput{
		MappingID: req.MappingID,
		DryRun:    req.DryRun,
		Trigger:   "manual",
	})
}

// HandleSyncScheduled handles GET /sync — the cron trigger.
func (h *Handlers) HandleSyncScheduled(w http.ResponseWriter, r *http.Request) {
	if err := h.authorizeScheduled(r); err != nil {
		writeError(w, err)
		return
	}

	h.runSync(w, r, engine.RunInput{Trigger: "scheduled"})
}

func (h *Handlers) runSync(w http.ResponseWriter, r *http.Request, in engine.RunInput) {
	summary, err := h.engine.Run(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := "sync completed"
	if in.DryRun {
		msg = "dry run completed"
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Message:   msg,
		CronLogID: summary.RunLogID,
		Results:   summary,
	})
}

// HandleMappingList handles GET /mappings.
func (h *Handlers) HandleMappingList(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	mappings, err := db.ListMappings(h.db)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappingViews(mappings)})
}

// HandleMappingCreate handles POST /mappings.
func (h *Handlers) HandleMappingCreate(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Owner     string `json:"owner"`
		Repo      string `json:"repo"`
		CompanyID string `json:"companyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidation("request body must be JSON: "+err.Error()))
		return
	}

	m, err := db.CreateMapping(h.db, req.Owner, req.Repo, req.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mappingView(*m))
}

// HandleMappingGet handles GET /mappings/{id}.
func (h *Handlers) HandleMappingGet(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	m, err := db.GetMapping(h.db, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mappingView(*m))
}

// HandleMappingDelete handles DELETE /mappings/{id}.
func (h *Handlers) HandleMappingDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	if err := db.DeleteMapping(h.db, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// HandleRunList handles GET /runs — recent run log with outcomes.
func (h *Handlers) HandleRunList(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := db.ListRuns(h.db, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	type runWithOutcomes struct {
		db.SyncRun
		Outcomes []db.SyncOutcome `json:"outcomes"`
	}

	out := make([]runWithOutcomes, 0, len(runs))
	for _, run := range runs {
		outcomes, err := db.ListOutcomes(h.db, run.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, runWithOutcomes{SyncRun: run, Outcomes: outcomes})
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// HandleHealthz handles GET /healthz. Unauthenticated: load balancers need it.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.version})
}

var previewTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Pending notes: {{.Repo}}</title></head>
<body>
<h1>Pending notes for {{.Repo}}</h1>
<p>{{if .Items}}{{len .Items}} release(s) would be published to company {{.CompanyID}}.{{else}}Nothing to publish.{{end}}</p>
{{range .Items}}
<hr>
<h2>{{.Tag}}{{if .Name}} &mdash; {{.Name}}{{end}}</h2>
<p><em>published {{.Published}}</em></p>
{{.Body}}
{{end}}
</body>
</html>
`))

type previewItem struct {
	Tag       string
	Name      string
	Published string
	Body      template.HTML
}

// HandlePreview handles GET /mappings/{id}/preview — an HTML view of what
// the next non-dry run would publish, with release bodies rendered from
// Markdown. Preview only: the published note path always goes through the
// escaped formatter.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeError(w, err)
		return
	}

	m, err := db.GetMapping(h.db, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	releases, err := h.fetcher.ListReleases(r.Context(), m.Owner, m.Repo, h.cfg.FetchLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	fresh, _ := release.Evaluate(m.Watermark, releases)

	items := make([]previewItem, 0, len(fresh))
	for _, rel := range fresh {
		var rendered strings.Builder
		if err := goldmark.Convert([]byte(rel.Body), &rendered); err != nil {
			writeError(w, errors.NewInternal(err))
			return
		}
		items = append(items, previewItem{
			Tag:       rel.TagName,
			Name:      rel.Name,
			Published: rel.PublishedAt.UTC().Format(time.RFC3339),
			Body:      template.HTML(rendered.String()),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = previewTmpl.Execute(w, struct {
		Repo      string
		CompanyID string
		Items     []previewItem
	}{
		Repo:      m.Owner + "/" + m.Repo,
		CompanyID: m.CompanyID,
		Items:     items,
	})
	if err != nil {
		writeError(w, errors.NewInternal(err))
	}
}

// mappingView shapes a mapping for JSON responses, surfacing the watermark
// as nullable fields.
type mappingJSON struct {
	ID                     string  `json:"id"`
	Owner                  string  `json:"owner"`
	Repo                   string  `json:"repo"`
	CompanyID              string  `json:"companyId"`
	LastReleaseID          *int64  `json:"lastReleaseId"`
	LastReleaseTagName     *string `json:"lastReleaseTagName"`
	LastReleasePublishedAt *string `json:"lastReleasePublishedAt"`
	CreatedAt              int64   `json:"createdAt"`
	UpdatedAt              int64   `json:"updatedAt"`
}

func mappingView(m db.Mapping) mappingJSON {
	v := mappingJSON{
		ID:                 m.ID,
		Owner:              m.Owner,
		Repo:               m.Repo,
		CompanyID:          m.CompanyID,
		LastReleaseID:      m.Watermark.ReleaseID,
		LastReleaseTagName: m.Watermark.TagName,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.Watermark.PublishedAt != nil {
		s := m.Watermark.PublishedAt.UTC().Format(time.RFC3339)
		v.LastReleasePublishedAt = &s
	}
	return v
}

func mappingViews(mappings []db.Mapping) []mappingJSON {
	views := make([]mappingJSON, 0, len(mappings))
	for _, m := range mappings {
		views = append(views, mappingView(m))
	}
	return views
}
