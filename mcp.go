package sqlgate

import (
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type tokenCtxKey struct{}

// ContextWithToken returns ctx carrying the caller token for MCP tool calls.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// TokenFromContext returns the token stored by ContextWithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenCtxKey{}).(string)
	return token
}

// MCPContextFunc copies the token header of each MCP HTTP request into the
// tool call context. Pass it to server.WithHTTPContextFunc.
func MCPContextFunc(g *Gateway) server.HTTPContextFunc {
	header := g.AuthHeader()
	return func(ctx context.Context, r *http.Request) context.Context {
		ctx = ContextWithToken(ctx, r.Header.Get(header))
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = context.WithValue(ctx, requestIDCtxKey{}, id)
		}
		return ctx
	}
}

// RegisterMCPTools registers the sql tool on the given MCP server. The
// tool runs the same pipeline as POST /sql.
func RegisterMCPTools(mcpServer *server.MCPServer, g *Gateway) {
	sqlTool := mcp.NewTool("sql",
		mcp.WithDescription("Execute one SQL statement through the gateway. Only SELECT, INSERT, UPDATE, DELETE, EXEC and WITH statements on allow-listed schema-qualified objects are accepted. Use ? placeholders with params."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithArray("params",
			mcp.Description("Positional scalar parameters bound to the ? placeholders"),
		),
	)

	mcpServer.AddTool(sqlTool, g.loggedToolHandler("sql", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		var params []any
		if raw, ok := req.GetArguments()["params"]; ok && raw != nil {
			list, ok := raw.([]any)
			if !ok {
				return mcp.NewToolResultError("params must be an array"), nil
			}
			params = integralParams(list)
		}

		output, err := g.Execute(ctx, ExecuteInput{Query: query, Params: params, Token: TokenFromContext(ctx)})
		if err != nil {
			gerr := classify(err)
			msg := gerr.Detail
			if gerr.Hint != "" {
				msg += "\n\n" + gerr.Hint
			}
			return mcp.NewToolResultError(msg), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))
}

// integralParams turns whole-number float64 values, which is how the MCP
// transport decodes every JSON number, back into int64 so drivers bind them
// as integers.
func integralParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		f, ok := p.(float64)
		if ok && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			out[i] = int64(f)
			continue
		}
		out[i] = p
	}
	return out
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (g *Gateway) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		logger := g.requestLogger(ctx)
		logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Bool("is_error", result != nil && result.IsError).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
