// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the publish pipeline for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/siteservice"
)

const cardFormatURI = "vitrine://card-format"

// Server wraps the MCP server with site tools.
type Server struct {
	mcp *server.MCPServer
	svc *siteservice.Service
}

// New creates a new MCP server with all site tools registered.
func New(svc *siteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Vitrine",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_master",
		mcp.WithDescription("Read the master document: raw HTML, checksum and parsed cards."),
	), s.readMaster)

	s.mcp.AddTool(mcp.NewTool("get_card",
		mcp.WithDescription("Read one card of the master document by its stable id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id (UUID)")),
	), s.getCard)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through card titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("list_registry",
		mcp.WithDescription("List the registry: card id, folder, title, order and thumbnail source per card."),
	), s.listRegistry)

	s.mcp.AddTool(mcp.NewTool("publish_site",
		mcp.WithDescription("Publish the site: sanitize the master document, assign ids and "+
			"regenerate the aggregate page and every per-folder page."),
	), s.publishSite)

	s.mcp.AddTool(mcp.NewTool("diff_site",
		mcp.WithDescription("Report drift between the topic folders and the published pages without changing anything."),
	), s.diffSite)

	s.mcp.AddTool(mcp.NewTool("apply_prune",
		mcp.WithDescription("Compute a fresh drift report and apply it: remove dead cards, "+
			"add cards for new folders and rebuild missing pages."),
		mcp.WithBoolean("delete_thumbs", mcp.Description("Also delete orphan thumbnail files")),
	), s.applyPrune)

	s.mcp.AddTool(mcp.NewTool("refresh_thumbnail",
		mcp.WithDescription("Regenerate the thumbnail of one topic folder."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Topic folder name")),
	), s.refreshThumbnail)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Store an image, PDF or video inside a topic folder from an http(s) URL "+
			"or a base64 data URI. The first image of a folder becomes its thumbnail source."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Topic folder name")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), s.uploadAsset)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the card markup contract of the master document. "+
			"Call this before editing the master document."),
	), s.getCardContract)

	s.mcp.AddResource(
		mcp.NewResource(cardFormatURI, "Card Format Contract",
			mcp.WithResourceDescription("Markup every card in the master document must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrLocked):
		return mcp.NewToolResultError("locked: another publish is in progress")
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) readMaster(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := s.svc.GetMaster(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) getCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Card(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c), nil
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) listRegistry(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.Registry(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(items), nil
}

func (s *Server) publishSite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.svc.Publish(ctx)
	if res.Locked {
		return mcp.NewToolResultError("locked: another publish is in progress"), nil
	}
	r := jsonResult(res)
	r.IsError = !res.Success
	return r, nil
}

func (s *Server) diffSite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Diff(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if rep.Empty() {
		return mcp.NewToolResultText("no drift"), nil
	}
	return mcp.NewToolResultText(rep.Pretty()), nil
}

func (s *Server) applyPrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.Prune(ctx, req.GetBool("delete_thumbs", false))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(out), nil
}

func (s *Server) refreshThumbnail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := s.svc.RefreshThumbnail(ctx, folder)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("refreshed: %s (%s)", folder, kind)), nil
}

func (s *Server) getCardContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      cardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
