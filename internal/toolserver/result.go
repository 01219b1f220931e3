package toolserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest) response

// response is a handler's JSON payload plus whether it is an MCP error.
// A not-found outcome has notFound set and is not an error.
type response struct {
	payload  any
	isError  bool
	notFound bool
}

func ok(payload any) response {
	return response{payload: payload}
}

func failed(payload any) response {
	return response{payload: payload, isError: true}
}

func notFound(payload any) response {
	return response{payload: payload, notFound: true}
}

func (r response) outcome() string {
	switch {
	case r.isError:
		return "error"
	case r.notFound:
		return "not_found"
	default:
		return "ok"
	}
}

func (r response) toResult() *mcp.CallToolResult {
	raw, err := json.MarshalIndent(r.payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(`{"success": false, "error": "encode result: ` + err.Error() + `"}`)
	}
	if r.isError {
		return mcp.NewToolResultError(string(raw))
	}
	return mcp.NewToolResultText(string(raw))
}
