// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes stash tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/stash/internal/blob"
	"github.com/starford/stash/internal/folders"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
	"github.com/starford/stash/internal/resources"
	"github.com/starford/stash/internal/stats"
)

const formatURI = "stash://resource-format"

// Deps are the services the tools call.
type Deps struct {
	Folders   *folders.Service
	Resources *resources.Service
	Query     *query.Engine
	Stats     *stats.Aggregator
	// Blobs is optional; without it attach_document is not offered.
	Blobs  *blob.Store
	Logger *slog.Logger
}

// Server wraps the MCP server with stash tools. All tools act for one user.
type Server struct {
	mcp       *server.MCPServer
	userID    string
	folders   *folders.Service
	resources *resources.Service
	query     *query.Engine
	stats     *stats.Aggregator
	blobs     *blob.Store
	logger    *slog.Logger
}

// New creates a new MCP server acting as userID with all tools registered.
func New(userID string, d Deps) *Server {
	s := &Server{
		userID:    userID,
		folders:   d.Folders,
		resources: d.Resources,
		query:     d.Query,
		stats:     d.Stats,
		blobs:     d.Blobs,
		logger:    d.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcp = server.NewMCPServer(
		"Stash",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_resources",
		mcp.WithDescription("Filter and search saved resources. All filters are optional and combined with AND."),
		mcp.WithString("query", mcp.Description("Words to search for in title, tags, description, content and annotations")),
		mcp.WithString("type", mcp.Description("Resource type"), mcp.Enum("bookmark", "prompt", "snippet", "document", "note")),
		mcp.WithString("folderId", mcp.Description(`Folder id, or "root" for unfiled resources`)),
		mcp.WithArray("tags", mcp.Description("Match resources with any of these tags"), mcp.WithStringItems()),
		mcp.WithBoolean("favorite", mcp.Description("Only favorites (true) or only non-favorites (false)")),
		mcp.WithNumber("page", mcp.Description("Page number, from 1")),
		mcp.WithNumber("limit", mcp.Description("Page size, at most 200")),
	), s.searchResources)

	s.mcp.AddTool(mcp.NewTool("get_resource",
		mcp.WithDescription("Read one resource with all of its fields."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	), s.getResource)

	s.mcp.AddTool(mcp.NewTool("create_resource",
		mcp.WithDescription("Create a bookmark, prompt, snippet or note. Documents carry a file, "+
			"use attach_document for them. "+
			"Read the field rules first via the get_resource_format tool or the "+formatURI+" resource."),
		mcp.WithString("type", mcp.Required(), mcp.Enum("bookmark", "prompt", "snippet", "note")),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("folderId", mcp.Description("Folder to file the resource in; empty for unfiled")),
		mcp.WithArray("tags", mcp.WithStringItems()),
		mcp.WithBoolean("favorite"),
		mcp.WithString("annotations"),
		mcp.WithString("url", mcp.Description("bookmark only")),
		mcp.WithString("content", mcp.Description("prompt, snippet and note")),
		mcp.WithString("description", mcp.Description("bookmark and snippet")),
		mcp.WithString("platform", mcp.Description("prompt only")),
		mcp.WithString("category", mcp.Description("prompt only")),
		mcp.WithString("codeLanguage", mcp.Description("snippet only")),
	), s.createResource)

	s.mcp.AddTool(mcp.NewTool("toggle_favorite",
		mcp.WithDescription("Flip the favorite flag of a resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	), s.toggleFavorite)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List folders, flat or as a nested tree."),
		mcp.WithBoolean("tree", mcp.Description("Return nested nodes instead of a flat list")),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("create_folder",
		mcp.WithDescription("Create a folder. Names are unique among siblings."),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("parentId", mcp.Description("Parent folder id; empty for top level")),
		mcp.WithString("color"),
		mcp.WithString("icon"),
	), s.createFolder)

	s.mcp.AddTool(mcp.NewTool("move_folder",
		mcp.WithDescription("Move a folder under another folder, or to the top level. "+
			"A folder cannot be moved into itself or its own subfolders."),
		mcp.WithString("folderId", mcp.Required()),
		mcp.WithString("parentId", mcp.Description("New parent folder id; empty for top level")),
	), s.moveFolder)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Count resources per type, in total and favorites."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("get_resource_format",
		mcp.WithDescription("Returns the resource types and their field rules. "+
			"Call this before creating resources."),
	), s.getResourceFormat)

	if s.blobs != nil {
		s.mcp.AddTool(mcp.NewTool("attach_document",
			mcp.WithDescription("Store a file and create a document resource for it."),
			mcp.WithString("data", mcp.Required(), mcp.Description("File content as a base64 data URI (data:<mime>;base64,...)")),
			mcp.WithString("fileName", mcp.Description("Original file name")),
			mcp.WithString("title", mcp.Description("Resource title; defaults to the file name")),
			mcp.WithString("folderId"),
			mcp.WithString("description"),
			mcp.WithArray("tags", mcp.WithStringItems()),
		), s.attachDocument)
	}

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Resource Format",
			mcp.WithResourceDescription("Resource types, their fields and validation rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	s.logger.Debug("mcp: tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error()), nil
}

// optionalString returns nil when key is absent or blank.
func optionalString(req mcp.CallToolRequest, key string) *string {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return nil
	}
	return &v
}

func hasArg(req mcp.CallToolRequest, key string) bool {
	_, ok := req.GetArguments()[key]
	return ok
}

func (s *Server) searchResources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := query.Filter{
		Type:   models.Type(req.GetString("type", "")),
		Tags:   req.GetStringSlice("tags", nil),
		Search: req.GetString("query", ""),
		Page:   req.GetInt("page", 0),
		Limit:  req.GetInt("limit", 0),
	}
	switch folder := strings.TrimSpace(req.GetString("folderId", "")); folder {
	case "":
	case query.RootSentinel, "null":
		f.Folder = query.RootFolder
	default:
		f.Folder = query.InFolder
		f.FolderID = folder
	}
	if hasArg(req, "favorite") {
		fav := req.GetBool("favorite", false)
		f.Favorite = &fav
	}

	res, err := s.query.Run(ctx, s.userID, f)
	if err != nil {
		return s.toolError("search_resources", err)
	}
	return jsonResult(res)
}

func (s *Server) getResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := s.resources.Get(ctx, s.userID, id)
	if err != nil {
		return s.toolError("get_resource", err)
	}
	return jsonResult(r)
}

func (s *Server) createResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if models.Type(typ) == models.TypeDocument {
		return mcp.NewToolResultError("documents need a file: use attach_document"), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := resources.CreateInput{
		Type:        models.Type(typ),
		Title:       title,
		FolderID:    optionalString(req, "folderId"),
		Tags:        req.GetStringSlice("tags", nil),
		Favorite:    req.GetBool("favorite", false),
		Annotations: req.GetString("annotations", ""),
	}
	in.URL = req.GetString("url", "")
	in.Content = req.GetString("content", "")
	in.Description = req.GetString("description", "")
	in.Platform = req.GetString("platform", "")
	in.Category = req.GetString("category", "")
	in.CodeLanguage = req.GetString("codeLanguage", "")

	r, err := s.resources.Create(ctx, s.userID, in)
	if err != nil {
		return s.toolError("create_resource", err)
	}
	return jsonResult(r)
}

func (s *Server) toggleFavorite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := s.resources.ToggleFavorite(ctx, s.userID, id)
	if err != nil {
		return s.toolError("toggle_favorite", err)
	}
	return jsonResult(r)
}

func (s *Server) listFolders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetBool("tree", false) {
		tree, err := s.folders.ListTree(ctx, s.userID)
		if err != nil {
			return s.toolError("list_folders", err)
		}
		return jsonResult(tree)
	}
	list, err := s.folders.List(ctx, s.userID)
	if err != nil {
		return s.toolError("list_folders", err)
	}
	return jsonResult(list)
}

func (s *Server) createFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.folders.Create(ctx, s.userID, folders.Input{
		Name:     name,
		ParentID: optionalString(req, "parentId"),
		Color:    req.GetString("color", ""),
		Icon:     req.GetString("icon", ""),
	})
	if err != nil {
		return s.toolError("create_folder", err)
	}
	return jsonResult(f)
}

func (s *Server) moveFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("folderId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.folders.Move(ctx, s.userID, id, optionalString(req, "parentId"))
	if err != nil {
		return s.toolError("move_folder", err)
	}
	return jsonResult(f)
}

func (s *Server) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.stats.ForUser(ctx, s.userID)
	if err != nil {
		return s.toolError("get_stats", err)
	}
	return jsonResult(st)
}

func (s *Server) getResourceFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ResourceFormat), nil
}

func (s *Server) readFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ResourceFormat,
		},
	}, nil
}
