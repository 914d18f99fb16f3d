// Package engine drives incremental release synchronization: it walks the
// tracked mappings, detects releases published since each mapping's
// watermark, publishes one CRM note per new release, and advances the
// watermark once the mapping's publishes are complete.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/release"
)

// Mapping outcome statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ReleaseFetcher retrieves the most recent releases of a repository.
type ReleaseFetcher interface {
	ListReleases(ctx context.Context, owner, repo string, limit int) ([]release.Release, error)
}

// NotePublisher creates one note attached to a CRM company.
type NotePublisher interface {
	CreateNote(ctx context.Context, companyID, htmlBody string) error
}

// Engine is the run orchestrator. Clients are injected once at construction;
// the engine holds no hidden global state.
type Engine struct {
	db        *sql.DB
	cfg       *config.Config
	fetcher   ReleaseFetcher
	publisher NotePublisher
	sleep     func(time.Duration)
}

// New creates an engine around the given storage and API clients.
func New(database *sql.DB, cfg *config.Config, fetcher ReleaseFetcher, publisher NotePublisher) *Engine {
	return &Engine{
		db:        database,
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publisher,
		sleep:     time.Sleep,
	}
}

// RunInput selects what a run covers.
type RunInput struct {
	// MappingID restricts the run to one mapping. Empty means all mappings.
	MappingID string
	// DryRun computes and reports what would be published without calling
	// the publisher or persisting anything (no watermark, no run log).
	DryRun bool
	// Trigger labels the run in the audit log: "manual", "scheduled", "cli", "mcp".
	Trigger string
}

// MappingResult is the finalized outcome for one mapping within a run.
type MappingResult struct {
	MappingID    string `json:"mappingId"`
	Status       string `json:"status"`
	NotesCreated int    `json:"notesCreated"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// RunSummary aggregates one engine invocation.
type RunSummary struct {
	MappingsProcessed int             `json:"mappingsProcessed"`
	NotesCreated      int             `json:"notesCreated"`
	Skipped           int             `json:"skipped"`
	Errors            []string        `json:"errors"`
	MappingResults    []MappingResult `json:"mappingResults"`

	// RunLogID is the sync_runs row for this invocation, nil for dry runs
	// and when run-log recording failed (recording is best-effort).
	RunLogID *int64 `json:"-"`
}

// Run executes one synchronization pass. Mappings are processed strictly
// sequentially; a failure in one mapping never aborts the others. The only
// fatal errors are those outside the per-mapping loop: the mapping table
// cannot be read, or the selected mapping does not exist.
//
// Crash semantics are at-least-once: if the process dies after publishing
// but before the watermark update, the next run republishes those notes.
// No dedupe key is embedded in the note.
func (e *Engine) Run(ctx context.Context, in RunInput) (*RunSummary, error) {
	if in.Trigger == "" {
		in.Trigger = "manual"
	}

	var mappings []db.Mapping
	if in.MappingID != "" {
		m, err := db.GetMapping(e.db, in.MappingID)
		if err != nil {
			return nil, err
		}
		mappings = []db.Mapping{*m}
	} else {
		var err error
		mappings, err = db.ListMappings(e.db)
		if err != nil {
			return nil, err
		}
	}

	summary := &RunSummary{
		Errors:         []string{},
		MappingResults: []MappingResult{},
	}

	rec := newRecorder(e.db)
	var runLogID *int64
	if !in.DryRun {
		runLogID = rec.startRun(in.Trigger, in.DryRun)
	}

	for _, m := range mappings {
		result := e.syncMapping(ctx, m, in.DryRun)

		summary.MappingsProcessed++
		summary.NotesCreated += result.NotesCreated
		switch result.Status {
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("%s/%s: %s", m.Owner, m.Repo, result.ErrorMessage))
		}
		summary.MappingResults = append(summary.MappingResults, result)

		rec.recordOutcome(runLogID, result)
	}

	rec.finishRun(runLogID, summary)
	summary.RunLogID = runLogID

	return summary, nil
}

// syncMapping runs the per-mapping state machine: validate, fetch, evaluate,
// publish ascending, persist watermark. Every error becomes a failed result;
// nothing escapes to the caller.
func (e *Engine) syncMapping(ctx context.Context, m db.Mapping, dryRun bool) MappingResult {
	result := MappingResult{MappingID: m.ID}

	// Validation happens before any network call.
	if m.Owner == "" || m.Repo == "" {
		result.Status = StatusFailed
		result.ErrorMessage = "mapping has no repository owner/name"
		return result
	}
	if m.CompanyID == "" {
		result.Status = StatusFailed
		result.ErrorMessage = "mapping has no destination company id"
		return result
	}

	releases, err := e.fetcher.ListReleases(ctx, m.Owner, m.Repo, e.cfg.FetchLimit)
	if err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
		return result
	}

	fresh, next := release.Evaluate(m.Watermark, releases)
	if next == nil {
		result.Status = StatusSkipped
		return result
	}

	repo := release.Repo{Owner: m.Owner, Name: m.Repo}
	delay := time.Duration(e.cfg.PublishDelayMs) * time.Millisecond

	// Ascending order is load-bearing: the persisted watermark is taken
	// from the last release actually published.
	for i, rel := range fresh {
		note := release.FormatNote(repo, rel)
		if !dryRun {
			if err := e.publisher.CreateNote(ctx, m.CompanyID, note); err != nil {
				// Notes already published in this mapping stay published;
				// the watermark is not advanced, so they may repeat next run.
				result.Status = StatusFailed
				result.ErrorMessage = err.Error()
				return result
			}
			if i < len(fresh)-1 {
				e.sleep(delay)
			}
		}
		result.NotesCreated++
	}

	if !dryRun {
		if err := db.UpdateWatermark(e.db, m.ID, *next); err != nil {
			result.Status = StatusFailed
			result.ErrorMessage = err.Error()
			return result
		}
	}

	result.Status = StatusSuccess
	return result
}
