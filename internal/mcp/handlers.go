package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/engine"
	"github.com/relaynote/relaynote/internal/errors"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	engine *engine.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, eng *engine.Engine) *Handlers {
	return &Handlers{db: db, cfg: cfg, engine: eng}
}

// Request types for each tool

// SyncRunRequest represents the arguments for sync_run.
type SyncRunRequest struct {
	MappingID string `json:"mapping_id,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// MappingCreateRequest represents the arguments for mapping_create.
type MappingCreateRequest struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	CompanyID string `json:"company_id,omitempty"`
}

// MappingDeleteRequest represents the arguments for mapping_delete.
type MappingDeleteRequest struct {
	ID string `json:"id"`
}

// RunListRequest represents the arguments for run_list.
type RunListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Handler implementations

// HandleSyncRun handles the sync_run tool call.
func (h *Handlers) HandleSyncRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SyncRunRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	summary, err := h.engine.Run(ctx, engine.RunInput{
		MappingID: input.MappingID,
		DryRun:    input.DryRun,
		Trigger:   "mcp",
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"cronLogId": summary.RunLogID,
		"results":   summary,
	})
}

// HandleMappingCreate handles the mapping_create tool call.
func (h *Handlers) HandleMappingCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MappingCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	m, err := db.CreateMapping(h.db, input.Owner, input.Repo, input.CompanyID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(mappingPayload(*m))
}

// HandleMappingList handles the mapping_list tool call.
func (h *Handlers) HandleMappingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mappings, err := db.ListMappings(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]map[string]any, 0, len(mappings))
	for _, m := range mappings {
		items = append(items, mappingPayload(m))
	}

	return successResult(map[string]any{"mappings": items})
}

// HandleMappingDelete handles the mapping_delete tool call.
func (h *Handlers) HandleMappingDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MappingDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewValidation("id is required")), nil
	}

	if err := db.DeleteMapping(h.db, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"deleted": input.ID})
}

// HandleRunList handles the run_list tool call.
func (h *Handlers) HandleRunList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	runs, err := db.ListRuns(h.db, limit)
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		outcomes, err := db.ListOutcomes(h.db, run.ID)
		if err != nil {
			return errorResult(err), nil
		}
		items = append(items, map[string]any{
			"run":      run,
			"outcomes": outcomes,
		})
	}

	return successResult(map[string]any{"runs": items})
}

// mappingPayload shapes a mapping for tool results, surfacing the watermark
// as nullable fields the way the HTTP API does.
func mappingPayload(m db.Mapping) map[string]any {
	payload := map[string]any{
		"id":                     m.ID,
		"owner":                  m.Owner,
		"repo":                   m.Repo,
		"companyId":              m.CompanyID,
		"lastReleaseId":          m.Watermark.ReleaseID,
		"lastReleaseTagName":     m.Watermark.TagName,
		"lastReleasePublishedAt": nil,
		"createdAt":              m.CreatedAt,
		"updatedAt":              m.UpdatedAt,
	}
	if m.Watermark.PublishedAt != nil {
		payload["lastReleasePublishedAt"] = m.Watermark.PublishedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := err.(*errors.SyncError); ok {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": sErr.Message,
			"status":  sErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
