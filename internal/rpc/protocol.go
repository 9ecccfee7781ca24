package rpc

import (
	"encoding/json"

	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
)

// JSON-RPC 2.0 method names, matching the table in spec.md §4.F.
const (
	MethodPing         = "ping"
	MethodStatus       = "status"
	MethodSearch       = "search"
	MethodEmbed        = "embed"
	MethodRerank       = "rerank"
	MethodLoadModel    = "load_model"
	MethodUnloadModel  = "unload_model"
	MethodReloadConfig = "reload_config"
	MethodShutdown     = "shutdown"
)

// Standard JSON-RPC 2.0 error codes, plus the one generic server-error code
// this system uses for the §7 Kind taxonomy.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeServerError    = -32000
)

// Request is one JSON-RPC 2.0 request. ID is kept as a raw JSON value since
// spec.md allows number or string (and omission, for notifications).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is one JSON-RPC 2.0 response, carrying exactly one of Result or
// Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorData is the shape of Error.Data for generic (-32000) server errors:
// the structured Kind taxonomy from spec.md §7, plus AmbiguousSource
// candidates when present.
type errorData struct {
	Kind       string   `json:"kind"`
	Candidates []string `json:"candidates,omitempty"`
}

// GetKind extracts the error Kind carried in Data, whether Data is the
// errorData struct built server-side or the map[string]any produced by
// decoding a wire response client-side.
func (e *Error) GetKind() string {
	switch d := e.Data.(type) {
	case errorData:
		return d.Kind
	case map[string]any:
		if k, ok := d["kind"].(string); ok {
			return k
		}
	}
	return ""
}

func successResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

// errorResponseFromErr maps a Go error to a JSON-RPC error response. A
// *apperrors.Error is mapped to code -32000 with data.kind set (spec.md
// §7: "The RPC layer maps them to JSON-RPC error objects with code: -32000
// and data.kind set"). Any other error becomes a generic -32000 with no
// kind.
func errorResponseFromErr(id json.RawMessage, err error) Response {
	if appErr, ok := err.(*apperrors.Error); ok {
		return Response{
			JSONRPC: "2.0",
			ID:      id,
			Error: &Error{
				Code:    ErrCodeServerError,
				Message: appErr.Error(),
				Data:    errorData{Kind: string(appErr.Kind), Candidates: appErr.Candidates},
			},
		}
	}
	return errorResponse(id, ErrCodeServerError, err.Error())
}
