package engine

import (
	"database/sql"
	"log"

	"github.com/relaynote/relaynote/internal/db"
)

// recorder persists run/outcome audit rows. Every call is best-effort:
// bookkeeping failures are logged and swallowed, never surfaced to the
// run itself.
type recorder struct {
	db *sql.DB
}

func newRecorder(database *sql.DB) *recorder {
	return &recorder{db: database}
}

// startRun inserts the sync_runs row and returns its id, or nil if the
// insert failed.
func (r *recorder) startRun(trigger string, dryRun bool) *int64 {
	id, err := db.InsertRun(r.db, trigger, dryRun)
	if err != nil {
		log.Printf("run log: failed to create run record: %v", err)
		return nil
	}
	return &id
}

// recordOutcome attaches one mapping outcome to the run.
func (r *recorder) recordOutcome(runID *int64, result MappingResult) {
	if runID == nil {
		return
	}
	var errMsg *string
	if result.ErrorMessage != "" {
		errMsg = &result.ErrorMessage
	}
	if err := db.InsertOutcome(r.db, *runID, result.MappingID, result.Status, result.NotesCreated, errMsg); err != nil {
		log.Printf("run log: failed to record outcome for mapping %s: %v", result.MappingID, err)
	}
}

// finishRun finalizes the run row with aggregate counts and the first
// error message, if any.
func (r *recorder) finishRun(runID *int64, summary *RunSummary) {
	if runID == nil {
		return
	}
	var firstErr *string
	if len(summary.Errors) > 0 {
		firstErr = &summary.Errors[0]
	}
	if err := db.FinalizeRun(r.db, *runID, "completed",
		summary.MappingsProcessed, summary.NotesCreated, summary.Skipped, firstErr); err != nil {
		log.Printf("run log: failed to finalize run %d: %v", *runID, err)
	}
}
