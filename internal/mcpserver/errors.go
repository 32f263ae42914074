package mcpserver

import (
	"fmt"

	"github.com/rifflux/rifflux/internal/errs"
)

// Standard JSON-RPC / MCP error codes, plus a few reserved for
// domain-specific failures the tool boundary needs to distinguish.
const (
	codeNotFound            = -32001
	codeEmbedderUnavailable = -32002
	codeSchema              = -32003
	codeInvalidParams       = -32602
	codeInternalError       = -32603
)

// MCPError is a protocol-level error carrying a JSON-RPC-style code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError classifies err via errs.Of and translates it into the MCP
// error code the tool boundary should surface: the core reports kinds,
// the tool boundary maps them to transport-appropriate responses.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	switch errs.Of(err) {
	case errs.NotFound:
		return &MCPError{Code: codeNotFound, Message: err.Error()}
	case errs.InvalidInput:
		return &MCPError{Code: codeInvalidParams, Message: err.Error()}
	case errs.EmbedderUnavailable:
		return &MCPError{Code: codeEmbedderUnavailable, Message: err.Error()}
	case errs.Schema:
		return &MCPError{Code: codeSchema, Message: "index schema is incompatible; delete the database and reindex"}
	default:
		return &MCPError{Code: codeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError builds a canned invalid-params MCPError, for
// boundary-level validation that never reaches the core.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: codeInvalidParams, Message: msg}
}
