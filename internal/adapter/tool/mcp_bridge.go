package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
)

const defaultMCPCallTimeout = 30 * time.Second

// MCPBridge owns the MCP server connections opened at startup. Tools are
// listed once; the snapshot is read-only afterwards.
type MCPBridge struct {
	servers []*mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

// mcpServerConn is one server. A stdio pipe carries a single exchange at a
// time, so calls hold callMu for the round trip.
type mcpServerConn struct {
	name        string
	client      mcpClient
	callMu      sync.Mutex
	callTimeout time.Duration
}

type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type mcpInitializer interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
}

// NewMCPBridge starts every configured server and lists its tools. A server
// that fails to start aborts startup; a server that fails to list tools is
// skipped unless every server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	conns := make([]*mcpServerConn, 0, len(servers))
	for _, srv := range servers {
		c, err := dialMCP(ctx, srv)
		if err != nil {
			closeAll(conns, logger)
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		logger.Info("mcp server connected", "server", srv.Name, "transport", transportName(srv))
		conns = append(conns, &mcpServerConn{name: srv.Name, client: c, callTimeout: srv.Timeout})
	}

	b, err := newMCPBridgeWithClients(ctx, conns, logger)
	if err != nil {
		closeAll(conns, logger)
		return nil, fmt.Errorf("discover tools: %w", err)
	}
	return b, nil
}

func newMCPBridgeWithClients(ctx context.Context, servers []*mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}

	var failed []error
	for _, srv := range servers {
		listed, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.Warn("mcp tool listing failed, skipping server", "server", srv.name, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", srv.name, err))
			continue
		}
		for _, t := range listed.Tools {
			b.tools = append(b.tools, newMCPToolAdapter(srv, t, logger))
		}
		logger.Info("mcp tools listed", "server", srv.name, "count", len(listed.Tools))
	}

	if len(failed) > 0 && len(failed) == len(servers) {
		return nil, fmt.Errorf("every mcp server failed: %w", errors.Join(failed...))
	}
	return b, nil
}

func transportName(srv config.MCPServer) string {
	if srv.Transport == "" {
		return "stdio"
	}
	return srv.Transport
}

func dialMCP(ctx context.Context, srv config.MCPServer) (mcpClient, error) {
	var c mcpClient
	switch transportName(srv) {
	case "stdio":
		stdio, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("spawn %q: %w", srv.Command, err)
		}
		c = stdio
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("http transport: %w", err)
		}
		hc := mcpclient.NewClient(t)
		if err := hc.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = hc
	default:
		return nil, fmt.Errorf("%w: mcp transport %q", domain.ErrInvalidInput, srv.Transport)
	}

	if ini, ok := c.(mcpInitializer); ok {
		req := mcp.InitializeRequest{}
		req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		req.Params.ClientInfo = mcp.Implementation{Name: "uiagent", Version: "1.0.0"}
		if _, err := ini.Initialize(ctx, req); err != nil {
			_ = c.Close()
			return nil, domain.WrapOp("mcp.initialize", err)
		}
	}
	return c, nil
}

// Tools returns the bridged tools in server order.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// RegisterAll adds every bridged tool to reg under its reported name.
func (b *MCPBridge) RegisterAll(reg *Registry) error {
	for _, t := range b.tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register mcp tool %q: %w", t.Name(), err)
		}
	}
	return nil
}

// Close stops every server; stdio subprocesses exit with their pipes.
func (b *MCPBridge) Close() {
	closeAll(b.servers, b.logger)
}

func closeAll(conns []*mcpServerConn, logger *slog.Logger) {
	for _, srv := range conns {
		if err := srv.client.Close(); err != nil {
			logger.Warn("mcp server close failed", "server", srv.name, "error", err)
		}
	}
}

// mcpToolAdapter exposes one remote tool as a domain.Tool.
type mcpToolAdapter struct {
	server *mcpServerConn
	remote mcp.Tool
	logger *slog.Logger
}

func newMCPToolAdapter(server *mcpServerConn, t mcp.Tool, logger *slog.Logger) *mcpToolAdapter {
	return &mcpToolAdapter{server: server, remote: t, logger: logger}
}

func (a *mcpToolAdapter) Name() string { return a.remote.Name }

func (a *mcpToolAdapter) Description() string {
	if a.remote.Description != "" {
		return a.remote.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", a.remote.Name, a.server.name)
}

func (a *mcpToolAdapter) Schema() domain.ToolSchema {
	s := domain.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters:  json.RawMessage(`{"type": "object"}`),
	}
	in := a.remote.InputSchema
	if in.Properties == nil && in.Required == nil {
		return s
	}
	if data, err := json.Marshal(in); err == nil {
		s.Parameters = data
	}
	return s
}

func (a *mcpToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]any
	if err := decodeParams(params, &args); err != nil {
		return ErrResult("invalid arguments: %v", err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = a.remote.Name
	req.Params.Arguments = args

	timeout := a.server.callTimeout
	if timeout <= 0 {
		timeout = defaultMCPCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a.logger.Debug("mcp tool call", "server", a.server.name, "tool", a.remote.Name)
	a.server.callMu.Lock()
	res, err := a.server.client.CallTool(ctx, req)
	a.server.callMu.Unlock()
	if err != nil {
		return ErrResult("MCP tool error: %v", err)
	}
	return &domain.ToolResult{Content: extractMCPContent(res), IsError: res.IsError}, nil
}

// extractMCPContent flattens a call result to text. Structured content wins
// when the server provides it; text parts are joined by newlines.
func extractMCPContent(res *mcp.CallToolResult) string {
	if res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			return string(data)
		}
	}
	var sb strings.Builder
	for i, c := range res.Content {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch v := c.(type) {
		case mcp.TextContent:
			sb.WriteString(v.Text)
		case *mcp.TextContent:
			sb.WriteString(v.Text)
		default:
			data, _ := json.Marshal(v)
			sb.Write(data)
		}
	}
	return sb.String()
}

// envSlice renders env as sorted KEY=VALUE pairs.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
