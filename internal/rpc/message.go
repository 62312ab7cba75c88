package rpc

import "encoding/json"

// Version is the only JSON-RPC protocol version this package speaks.
const Version = "2.0"

// Error codes fixed by the JSON-RPC 2.0 specification, plus the
// application-defined -32000 used for upstream failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is one decoded input line. A nil or literal-null ID marks a
// notification; notifications never produce output.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Errorf builds an Error without data.
func Errorf(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Response is the output envelope. Exactly one of Result and Err is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Err     *Error          `json:"error,omitempty"`
}

// NewResult builds a success response echoing id.
func NewResult(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// NewError builds an error response echoing id.
func NewError(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: Version, ID: normalizeID(id), Err: err}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
