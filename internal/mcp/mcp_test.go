package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/db"
	"github.com/relaynote/relaynote/internal/engine"
	"github.com/relaynote/relaynote/internal/errors"
	"github.com/relaynote/relaynote/internal/release"
)

type stubFetcher struct {
	releases map[string][]release.Release
}

func (f *stubFetcher) ListReleases(_ context.Context, owner, repo string, _ int) ([]release.Release, error) {
	return f.releases[owner+"/"+repo], nil
}

type stubPublisher struct {
	notes int
}

func (p *stubPublisher) CreateNote(_ context.Context, _, _ string) error {
	p.notes++
	return nil
}

// testSetup creates a temporary database, config, and engine for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, *engine.Engine) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()

	fetcher := &stubFetcher{releases: map[string][]release.Release{
		"acme/widgets": {{ID: 7, TagName: "v1.2.0", PublishedAt: timePtr("2024-03-01T00:00:00Z")}},
	}}
	eng := engine.New(database, cfg, fetcher, &stubPublisher{})

	return database, cfg, eng
}

func timePtr(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleMappingCreate(t *testing.T) {
	database, cfg, eng := testSetup(t)
	_ = database

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "create valid mapping",
			args: map[string]any{
				"owner":      "acme",
				"repo":       "widgets",
				"company_id": "9001",
			},
			wantError: false,
		},
		{
			name: "create without owner",
			args: map[string]any{
				"repo": "widgets",
			},
			wantError: true,
			errorCode: "VALIDATION",
		},
		{
			name: "create duplicate",
			args: map[string]any{
				"owner":      "acme",
				"repo":       "widgets",
				"company_id": "9001",
			},
			wantError: true,
			errorCode: "ALREADY_EXISTS",
		},
		{
			name: "create without company",
			args: map[string]any{
				"owner": "acme",
				"repo":  "gadgets",
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleMappingCreate(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

func TestHandleMappingList(t *testing.T) {
	database, cfg, eng := testSetup(t)

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	if _, err := db.CreateMapping(database, "acme", "widgets", "9001"); err != nil {
		t.Fatalf("setup mapping failed: %v", err)
	}

	result, err := h.HandleMappingList(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	output := parseOutput(t, result)
	mappings := output["mappings"].([]any)
	if len(mappings) != 1 {
		t.Fatalf("got %d mappings, want 1", len(mappings))
	}

	m := mappings[0].(map[string]any)
	if m["owner"] != "acme" || m["repo"] != "widgets" {
		t.Errorf("mapping = %+v", m)
	}
	if m["lastReleaseId"] != nil {
		t.Error("fresh mapping should have null lastReleaseId")
	}
}

func TestHandleMappingDelete(t *testing.T) {
	database, cfg, eng := testSetup(t)

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	m, err := db.CreateMapping(database, "acme", "widgets", "9001")
	if err != nil {
		t.Fatalf("setup mapping failed: %v", err)
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "delete existing",
			args:      map[string]any{"id": m.ID},
			wantError: false,
		},
		{
			name:      "delete already deleted",
			args:      map[string]any{"id": m.ID},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "delete without id",
			args:      map[string]any{},
			wantError: true,
			errorCode: "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleMappingDelete(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

func TestHandleSyncRun(t *testing.T) {
	database, cfg, eng := testSetup(t)

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	if _, err := db.CreateMapping(database, "acme", "widgets", "9001"); err != nil {
		t.Fatalf("setup mapping failed: %v", err)
	}

	result, err := h.HandleSyncRun(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	output := parseOutput(t, result)
	if output["cronLogId"] == nil {
		t.Error("cronLogId should be set for a real run")
	}

	results := output["results"].(map[string]any)
	if n := results["notesCreated"].(float64); n != 1 {
		t.Errorf("notesCreated = %v, want 1", n)
	}
	if n := results["mappingsProcessed"].(float64); n != 1 {
		t.Errorf("mappingsProcessed = %v, want 1", n)
	}
}

func TestHandleSyncRun_DryRun(t *testing.T) {
	database, cfg, eng := testSetup(t)

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	if _, err := db.CreateMapping(database, "acme", "widgets", "9001"); err != nil {
		t.Fatalf("setup mapping failed: %v", err)
	}

	result, err := h.HandleSyncRun(ctx, makeRequest(map[string]any{"dry_run": true}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	output := parseOutput(t, result)
	if output["cronLogId"] != nil {
		t.Error("cronLogId should be null for a dry run")
	}

	// Watermark must be untouched
	mappings, err := db.ListMappings(database)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if mappings[0].Watermark.ReleaseID != nil {
		t.Error("dry run should not advance the watermark")
	}
}

func TestHandleSyncRun_UnknownMapping(t *testing.T) {
	database, cfg, eng := testSetup(t)
	_ = database

	h := NewHandlers(database, cfg, eng)

	result, err := h.HandleSyncRun(context.Background(), makeRequest(map[string]any{
		"mapping_id": "does-not-exist",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown mapping")
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleRunList(t *testing.T) {
	database, cfg, eng := testSetup(t)

	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	if _, err := db.CreateMapping(database, "acme", "widgets", "9001"); err != nil {
		t.Fatalf("setup mapping failed: %v", err)
	}
	if result, err := h.HandleSyncRun(ctx, makeRequest(map[string]any{})); err != nil || result.IsError {
		t.Fatalf("setup sync failed: err=%v result=%v", err, extractErrorMessage(result))
	}

	result, err := h.HandleRunList(ctx, makeRequest(map[string]any{"limit": 5}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	output := parseOutput(t, result)
	runs := output["runs"].([]any)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	entry := runs[0].(map[string]any)
	run := entry["run"].(map[string]any)
	if run["status"] != "completed" {
		t.Errorf("run status = %v, want completed", run["status"])
	}
	outcomes := entry["outcomes"].([]any)
	if len(outcomes) != 1 {
		t.Errorf("got %d outcomes, want 1", len(outcomes))
	}
}

func TestServerRegistration(t *testing.T) {
	database, cfg, eng := testSetup(t)

	s := NewServer(database, cfg, eng, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"sync_run",
		"mapping_create",
		"mapping_list",
		"mapping_delete",
		"run_list",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, eng := testSetup(t)

	cfg.DisabledTools = []string{"mapping_delete"}
	s := NewServer(database, cfg, eng, "test")
	tools := s.ListTools()

	if len(tools) != 4 {
		t.Errorf("registered tool count = %d, want 4", len(tools))
	}
	if _, ok := tools["mapping_delete"]; ok {
		t.Error("disabled tool mapping_delete should not be registered")
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	database, cfg, eng := testSetup(t)

	cfg.DisabledTypes = []string{"mapping"}
	s := NewServer(database, cfg, eng, "test")
	tools := s.ListTools()

	// mapping_create, mapping_list, mapping_delete gone
	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
	for _, name := range []string{"sync_run", "run_list"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q should still be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"sync_run", "run_list"}, wantLen: 0},
		{name: "one unknown", input: []string{"sync_run", "fake_tool"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar"}, wantLen: 2},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestGetTypeForTool(t *testing.T) {
	if typ := GetTypeForTool("mapping_create"); typ != "mapping" {
		t.Errorf("GetTypeForTool(mapping_create) = %q, want mapping", typ)
	}
	if typ := GetTypeForTool("nounderscores"); typ != "" {
		t.Errorf("GetTypeForTool(nounderscores) = %q, want empty", typ)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_NonSyncErrorIsGenericInternal(t *testing.T) {
	r := errorResult(fmt.Errorf("raw failure with paths /home/x"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message = %v, raw errors must not leak", errObj["message"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
