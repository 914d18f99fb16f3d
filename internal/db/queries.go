package db

import (
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/relaynote/relaynote/internal/errors"
	"github.com/relaynote/relaynote/internal/release"
)

// Mapping links one upstream repository to one destination CRM company.
// The three last_release_* columns form the sync watermark; only the run
// orchestrator writes them, and never during a dry run.
type Mapping struct {
	ID        string            `json:"id"`
	Owner     string            `json:"owner"`
	Repo      string            `json:"repo"`
	CompanyID string            `json:"companyId"`
	Watermark release.Watermark `json:"-"`
	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
}

// SyncRun is one audit record per engine invocation.
type SyncRun struct {
	ID                int64   `json:"id"`
	Trigger           string  `json:"trigger"`
	DryRun            bool    `json:"dryRun"`
	Status            string  `json:"status"`
	MappingsProcessed int     `json:"mappingsProcessed"`
	NotesCreated      int     `json:"notesCreated"`
	Skipped           int     `json:"skipped"`
	Error             *string `json:"error,omitempty"`
	StartedAt         int64   `json:"startedAt"`
	FinishedAt        *int64  `json:"finishedAt,omitempty"`
}

// SyncOutcome is the per-mapping result row attached to a run.
type SyncOutcome struct {
	ID           int64   `json:"id"`
	RunID        int64   `json:"runId"`
	MappingID    string  `json:"mappingId"`
	Status       string  `json:"status"`
	NotesCreated int     `json:"notesCreated"`
	Error        *string `json:"error,omitempty"`
	CreatedAt    int64   `json:"createdAt"`
}

// CreateMapping inserts a new mapping with a fresh ULID.
// Owner and repo are required; company_id may be empty (the engine will
// fail such mappings per run until one is set).
func CreateMapping(db *sql.DB, owner, repo, companyID string) (*Mapping, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	companyID = strings.TrimSpace(companyID)
	if owner == "" || repo == "" {
		return nil, errors.NewValidation("owner and repo are required")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()

	m := &Mapping{
		ID:        id,
		Owner:     owner,
		Repo:      repo,
		CompanyID: companyID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO mappings (id, owner, repo, company_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query, m.ID, m.Owner, m.Repo, toNullString(companyID), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, errors.NewAlreadyExists(owner, repo, companyID)
		}
		return nil, errors.NewInternal(err)
	}

	return m, nil
}

// GetMapping retrieves a mapping by id.
func GetMapping(db *sql.DB, id string) (*Mapping, error) {
	row := db.QueryRow(selectMapping+" WHERE id = ?", id)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return m, nil
}

// ListMappings returns all mappings, oldest first.
func ListMappings(db *sql.DB) ([]Mapping, error) {
	rows, err := db.Query(selectMapping + " ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return mappings, nil
}

// DeleteMapping removes a mapping permanently.
func DeleteMapping(db *sql.DB, id string) error {
	result, err := db.Exec("DELETE FROM mappings WHERE id = ?", id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// UpdateWatermark persists an advanced watermark for a mapping. Called by
// the run orchestrator only, after all publishes for the mapping succeeded.
func UpdateWatermark(db *sql.DB, id string, w release.Watermark) error {
	var publishedAt *int64
	if w.PublishedAt != nil {
		v := w.PublishedAt.Unix()
		publishedAt = &v
	}

	query := `
		UPDATE mappings
		SET last_release_id = ?, last_release_tag = ?, last_release_published_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := db.Exec(query, w.ReleaseID, w.TagName, publishedAt, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// InsertRun creates a sync_runs row in the "running" state and returns its id.
func InsertRun(db *sql.DB, trigger string, dryRun bool) (int64, error) {
	query := `
		INSERT INTO sync_runs (triggered_by, dry_run, status, started_at)
		VALUES (?, ?, 'running', ?)
	`
	result, err := db.Exec(query, trigger, boolToInt(dryRun), time.Now().Unix())
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// FinalizeRun records aggregate counts and the terminal status for a run.
func FinalizeRun(db *sql.DB, runID int64, status string, processed, created, skipped int, errMsg *string) error {
	query := `
		UPDATE sync_runs
		SET status = ?, mappings_processed = ?, notes_created = ?, skipped = ?,
			error = ?, finished_at = ?
		WHERE id = ?
	`
	_, err := db.Exec(query, status, processed, created, skipped, errMsg, time.Now().Unix(), runID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InsertOutcome attaches one finalized per-mapping outcome to a run.
func InsertOutcome(db *sql.DB, runID int64, mappingID, status string, notesCreated int, errMsg *string) error {
	query := `
		INSERT INTO sync_outcomes (run_id, mapping_id, status, notes_created, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, runID, mappingID, status, notesCreated, errMsg, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves one run by id.
func GetRun(db *sql.DB, id int64) (*SyncRun, error) {
	row := db.QueryRow(selectRun+" WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(selectRun+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// ListOutcomes returns the outcome rows for one run, in insertion order.
func ListOutcomes(db *sql.DB, runID int64) ([]SyncOutcome, error) {
	query := `
		SELECT id, run_id, mapping_id, status, notes_created, error, created_at
		FROM sync_outcomes
		WHERE run_id = ?
		ORDER BY id ASC
	`
	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var outcomes []SyncOutcome
	for rows.Next() {
		var o SyncOutcome
		if err := rows.Scan(&o.ID, &o.RunID, &o.MappingID, &o.Status, &o.NotesCreated, &o.Error, &o.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return outcomes, nil
}

const selectMapping = `
	SELECT id, owner, repo, company_id, last_release_id, last_release_tag,
		last_release_published_at, created_at, updated_at
	FROM mappings
`

const selectRun = `
	SELECT id, triggered_by, dry_run, status, mappings_processed, notes_created,
		skipped, error, started_at, finished_at
	FROM sync_runs
`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(s scanner) (*Mapping, error) {
	var m Mapping
	var companyID, tag sql.NullString
	var releaseID, publishedAt sql.NullInt64

	err := s.Scan(&m.ID, &m.Owner, &m.Repo, &companyID, &releaseID, &tag,
		&publishedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if companyID.Valid {
		m.CompanyID = companyID.String
	}
	if releaseID.Valid {
		v := releaseID.Int64
		m.Watermark.ReleaseID = &v
	}
	if tag.Valid {
		v := tag.String
		m.Watermark.TagName = &v
	}
	if publishedAt.Valid {
		v := time.Unix(publishedAt.Int64, 0).UTC()
		m.Watermark.PublishedAt = &v
	}

	return &m, nil
}

func scanRun(s scanner) (*SyncRun, error) {
	var r SyncRun
	var dryRun int
	err := s.Scan(&r.ID, &r.Trigger, &dryRun, &r.Status, &r.MappingsProcessed,
		&r.NotesCreated, &r.Skipped, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.DryRun = dryRun != 0
	return &r, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// generateULID generates a new ULID for a mapping id.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
