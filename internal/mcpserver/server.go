// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the client roster for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/caldate"
	"github.com/starford/evolve/internal/encoder"
	"github.com/starford/evolve/internal/imagecrypt"
	"github.com/starford/evolve/internal/roster"
	"github.com/starford/evolve/internal/storage"
	"github.com/starford/evolve/internal/store"
)

// AvatarDecrypter fetches and decrypts the blob behind an image reference.
// *dashboard.Service implements it.
type AvatarDecrypter interface {
	ImageURL(ref string) string
	DecryptRef(ctx context.Context, ref string) (imagecrypt.Source, error)
}

// Deps are the services the tools run against. Uploads and Encoder are
// optional; upload_avatar is only registered when Uploads is set.
type Deps struct {
	Clients store.ClientStore
	Avatars AvatarDecrypter
	Uploads storage.Provider
	Encoder *encoder.Encoder
}

// Server wraps the MCP server with roster tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// New creates a new MCP server with all tools registered.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"Evolve",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_clients",
		mcp.WithDescription("List clients as the dashboard renders them: filtered, optionally sorted, "+
			"with serial numbers counting only the visible rows. Read evolve://roster-guide for the rules."),
		mcp.WithString("q", mcp.Description("Case-insensitive substring of name or phone number")),
		mcp.WithString("status", mcp.Description("active or inactive")),
		mcp.WithString("gender", mcp.Description("Exact gender value, e.g. m or f")),
		mcp.WithString("start", mcp.Description("Earliest end date, dd-mm-yyyy")),
		mcp.WithString("end", mcp.Description("Latest end date, dd-mm-yyyy")),
		mcp.WithString("sort", mcp.Description("Sort column: name, date or status")),
		mcp.WithString("order", mcp.Description("asc (default) or desc")),
	), s.listClients)

	s.mcp.AddTool(mcp.NewTool("get_client",
		mcp.WithDescription("Get one client record by client_id."),
		mcp.WithNumber("client_id", mcp.Required(), mcp.Description("The client's client_id")),
	), s.getClient)

	s.mcp.AddTool(mcp.NewTool("avatar_info",
		mcp.WithDescription("Fetch and decrypt a client's avatar blob and report its type, "+
			"the ciphertext layout that opened it and its size."),
		mcp.WithString("image_ref", mcp.Required(), mcp.Description("The record's image_url value (hex reference)")),
	), s.avatarInfo)

	if deps.Uploads != nil {
		s.mcp.AddTool(mcp.NewTool("upload_avatar",
			mcp.WithDescription("Store a plaintext PNG avatar for a phone number and encrypt it. "+
				"Accepts a base64 data URI or an http(s) URL."),
			mcp.WithString("phone_number", mcp.Required(), mcp.Description("Client phone number; becomes the file stem")),
			mcp.WithString("url", mcp.Required(), mcp.Description("data:image/png;base64,... or an http(s) URL")),
		), s.uploadAvatar)
	}

	s.mcp.AddResource(
		mcp.NewResource(GuideURI, "Roster Guide",
			mcp.WithResourceDescription("How the dashboard filters, sorts and numbers client rows."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

type clientRow struct {
	Serial    int    `json:"serial"`
	ClientID  int64  `json:"client_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone_number"`
	Status    string `json:"status"`
	Gender    string `json:"gender"`
	EndDate   string `json:"end_date"`
	ImageRef  string `json:"image_url,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (s *Server) listClients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients, err := s.deps.Clients.ListClients(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var imageURL func(string) string
	if s.deps.Avatars != nil {
		imageURL = s.deps.Avatars.ImageURL
	}
	view := roster.NewView(roster.NewItems(clients, imageURL))

	spec := roster.FilterSpec{
		Query:  req.GetString("q", ""),
		Status: req.GetString("status", ""),
		Gender: req.GetString("gender", ""),
	}
	spec.Start, _ = caldate.ParseDMY(req.GetString("start", ""))
	spec.End, _ = caldate.ParseDMY(req.GetString("end", ""))
	snap := view.Filter(spec)

	if raw := req.GetString("sort", ""); raw != "" {
		key, err := roster.ParseSortKey(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		snap, _ = view.Sort(key)
		if req.GetString("order", "") == string(roster.Descending) {
			snap, _ = view.Sort(key)
		}
	}

	rows := make([]clientRow, 0, snap.Visible)
	for _, r := range snap.VisibleRows() {
		rows = append(rows, clientRow{
			Serial:    r.Serial,
			ClientID:  r.Item.ClientID,
			Name:      r.Item.Name,
			Phone:     r.Item.Phone,
			Status:    r.Item.StatusLabel(),
			Gender:    r.Item.Gender,
			EndDate:   r.Item.EndDate.String(),
			ImageRef:  r.Item.ImageRef,
			AvatarURL: r.Item.ImageURL,
		})
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getClient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("client_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.deps.Clients.GetClient(ctx, int64(id))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("client not found: %d", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(c, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type avatarReport struct {
	ImageRef string            `json:"image_ref"`
	URL      string            `json:"url"`
	MIME     string            `json:"mime"`
	Layout   imagecrypt.Layout `json:"layout"`
	Size     int               `json:"size"`
}

func (s *Server) avatarInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Avatars == nil {
		return mcp.NewToolResultError("avatar decryption is not configured"), nil
	}
	ref, err := req.RequireString("image_ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.deps.Avatars.DecryptRef(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decrypt %s: %v", ref, err)), nil
	}
	out, _ := json.MarshalIndent(avatarReport{
		ImageRef: ref,
		URL:      s.deps.Avatars.ImageURL(ref),
		MIME:     src.MIME,
		Layout:   src.Layout,
		Size:     src.Size,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GuideURI,
			MIMEType: "text/markdown",
			Text:     RosterGuide,
		},
	}, nil
}
