// Package jsonrpc holds the JSON-RPC 2.0 envelope types and the error codes
// the task gateway speaks on its POST / endpoint.
package jsonrpc

import "encoding/json"

// Version is the only protocol version accepted.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes plus the gateway's task-domain codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound     = -32001
	CodeTaskNotCancelable = -32002
	CodeQueueFull         = -32003
)

// Request is an incoming JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outgoing JSON-RPC 2.0 reply. Exactly one of Result or Error
// is set.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Result builds a success response for a request id.
func Result(id, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// Fail builds an error response for a request id.
func Fail(id any, err *Error) Response {
	return Response{JSONRPC: Version, ID: id, Error: err}
}

// ValidMethods are the supported method names, including the PascalCase
// aliases some clients send.
var ValidMethods = map[string]string{
	"message/send":         "message/send",
	"message/stream":       "message/stream",
	"tasks/get":            "tasks/get",
	"tasks/cancel":         "tasks/cancel",
	"SendMessage":          "message/send",
	"SendStreamingMessage": "message/stream",
	"GetTask":              "tasks/get",
	"CancelTask":           "tasks/cancel",
}

// Canonical maps an incoming method name to its canonical form, or "" when
// the method is unknown.
func Canonical(method string) string {
	return ValidMethods[method]
}
