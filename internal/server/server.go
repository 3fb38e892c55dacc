// Package server exposes the tool catalog and console buffer over MCP.
package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
	"github.com/frontend-sniper/frontend-sniper/internal/tools"
)

const (
	serverName = "frontend-sniper"

	consoleURI         = "sniper://console"
	consoleURITemplate = "sniper://console/{level}"
	jsonMIMEType       = "application/json"
)

// Dispatcher runs tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage) *tools.Result
	Has(name string) bool
	Normalize(name string) string
}

// ConsoleSource provides the buffered console entries.
type ConsoleSource interface {
	ConsoleEntries() []browser.ConsoleEntry
}

// Server is the MCP face of the bridge.
type Server struct {
	logger     *zap.Logger
	dispatcher Dispatcher
	console    ConsoleSource
	template   *uritemplate.Template
	mcp        *mcp.Server
}

// New registers every catalog tool and the console resources.
func New(logger *zap.Logger, version string, d Dispatcher, console ConsoleSource) *Server {
	s := &Server{
		logger:     logger.Named("mcp"),
		dispatcher: d,
		console:    console,
		template:   uritemplate.MustNew(consoleURITemplate),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)
	s.mcp.AddReceivingMiddleware(s.normalizeToolNames)

	for _, spec := range tools.Catalog() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		}, s.handleTool)
	}

	s.mcp.AddResource(&mcp.Resource{
		URI:         consoleURI,
		Name:        "console",
		Description: "Most recent console messages of the active page",
		MIMEType:    jsonMIMEType,
	}, s.readConsole)
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: consoleURITemplate,
		Name:        "console-by-level",
		Description: "Console messages of one level (log, info, warning, error, debug)",
		MIMEType:    jsonMIMEType,
	}, s.readConsole)

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Server ready - waiting for MCP requests on STDIO")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// normalizeToolNames rewrites routed names such as "srv__navigate" to the
// registered name before the SDK looks the tool up. Names no tool answers to
// go straight to the dispatcher, which reports them as an error result
// instead of the SDK's protocol error.
func (s *Server) normalizeToolNames(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		call, ok := req.(*mcp.CallToolRequest)
		if !ok || call.Params == nil {
			return next(ctx, method, req)
		}
		name := call.Params.Name
		if !s.dispatcher.Has(name) {
			s.logger.Debug("Unknown tool requested", zap.String("raw_name", name))
			return toCallToolResult(s.dispatcher.Dispatch(ctx, name, call.Params.Arguments)), nil
		}
		if normalized := s.dispatcher.Normalize(name); normalized != name {
			s.logger.Debug("Normalized tool name", zap.String("raw_name", name), zap.String("tool", normalized))
			call.Params.Name = normalized
		}
		return next(ctx, method, req)
	}
}

func (s *Server) handleTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.dispatcher.Dispatch(ctx, req.Params.Name, req.Params.Arguments)
	return toCallToolResult(res), nil
}

func toCallToolResult(res *tools.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: res.IsError}
	for _, b := range res.Content {
		switch b.Type {
		case tools.ImageBlock:
			out.Content = append(out.Content, &mcp.ImageContent{Data: b.Data, MIMEType: b.MIMEType})
		default:
			out.Content = append(out.Content, &mcp.TextContent{Text: b.Text})
		}
	}
	return out
}

func (s *Server) readConsole(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	entries := s.console.ConsoleEntries()

	if uri != consoleURI {
		values := s.template.Match(uri)
		if values == nil {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		level := values.Get("level").String()
		filtered := entries[:0:0]
		for _, e := range entries {
			if strings.EqualFold(e.Level, level) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if entries == nil {
		entries = []browser.ConsoleEntry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(data),
		}},
	}, nil
}
