package daemon

import (
	"encoding/json"

	"github.com/agentdb/memory/internal/memerr"
)

// JSON-RPC 2.0 reserved error codes (spec.md §6).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Request is one JSON-RPC 2.0 request envelope (spec.md §6).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Response is one JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is the error object of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// MethodFunc handles one dispatched RPC method call.
type MethodFunc func(params json.RawMessage) (any, error)

// Dispatcher routes "<namespace>.<verb>" methods to registered handlers
// (spec.md §4.7 "Dispatch").
type Dispatcher struct {
	methods map[string]MethodFunc
}

// NewDispatcher builds an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{methods: make(map[string]MethodFunc)}
}

// Register binds method to fn.
func (d *Dispatcher) Register(method string, fn MethodFunc) {
	d.methods[method] = fn
}

// Handle parses a raw request line, dispatches it, and always returns a
// well-formed Response (spec.md §4.7 "validates... all other errors are
// wrapped as -32603 with a typed code in data").
func (d *Dispatcher) Handle(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, CodeParseError, "parse error", nil)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", nil)
	}

	fn, ok := d.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	result, err := fn(req.Params)
	if err != nil {
		return d.errorFromErr(req.ID, err)
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, CodeInternal, "result marshal failed", nil)
	}
	return Response{JSONRPC: "2.0", Result: resultBytes, ID: req.ID}
}

func (d *Dispatcher) errorFromErr(id json.RawMessage, err error) Response {
	var me *memerr.Error
	if e, ok := err.(*memerr.Error); ok {
		me = e
	}
	if me == nil {
		return errorResponse(id, CodeInternal, err.Error(), nil)
	}
	code := CodeInternal
	switch me.Code {
	case memerr.Validation:
		code = CodeInvalidParams
	case memerr.MethodNotFound:
		code = CodeMethodNotFound
	case memerr.InvalidParams:
		code = CodeInvalidParams
	}
	return errorResponse(id, code, me.Message, map[string]any{"code": string(me.Code)})
}

func errorResponse(id json.RawMessage, code int, message string, data map[string]any) Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
