package mcp

import "github.com/mark3labs/mcp-go/mcp"

var syncRunToolDef = mcp.NewTool("sync_run",
	mcp.WithDescription("Run a release-to-note sync. Fetches new GitHub releases for each mapping and publishes one CRM note per release. Pass mapping_id to sync a single mapping, dry_run to compute without publishing."),
	mcp.WithString("mapping_id",
		mcp.Description("Sync only this mapping. Omit to sync all mappings."),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Compute what would be published without creating notes or advancing watermarks."),
	),
)

var mappingCreateToolDef = mcp.NewTool("mapping_create",
	mcp.WithDescription("Create a repo-to-company mapping. New releases in owner/repo will be published as notes on the CRM company."),
	mcp.WithString("owner",
		mcp.Required(),
		mcp.Description("GitHub repository owner (user or org)."),
	),
	mcp.WithString("repo",
		mcp.Required(),
		mcp.Description("GitHub repository name."),
	),
	mcp.WithString("company_id",
		mcp.Description("CRM company ID the notes attach to. A mapping without one fails each run until it is set."),
	),
)

var mappingListToolDef = mcp.NewTool("mapping_list",
	mcp.WithDescription("List all repo-to-company mappings with their current watermarks."),
)

var mappingDeleteToolDef = mcp.NewTool("mapping_delete",
	mcp.WithDescription("Delete a mapping by ID. Already-published notes are not touched."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Mapping ID."),
	),
)

var runListToolDef = mcp.NewTool("run_list",
	mcp.WithDescription("List recent sync runs, newest first, with per-mapping outcomes."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of runs to return (default 20)."),
	),
)
