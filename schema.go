package toolbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates the frame shapes carried over a session.
type MessageType string

// The five frame shapes of the protocol. A session carries exactly one
// message per frame.
const (
	// TypeDiscover is the discovery request sent by a client during the
	// handshake. It carries no other fields.
	TypeDiscover MessageType = "discover"
	// TypeTools is the server's answer to a discovery request, carrying the
	// full tool list in registration order.
	TypeTools MessageType = "tools"
	// TypeCall is an invocation request: ID, Tool and Arguments are set.
	TypeCall MessageType = "call"
	// TypeResult is a successful invocation response: ID and Result are set.
	TypeResult MessageType = "result"
	// TypeError is a failed invocation response: ID, Kind and Message are set.
	TypeError MessageType = "error"
)

// ErrorKind classifies protocol-level failures.
type ErrorKind string

// Error kinds reported through TypeError frames and CallError values.
const (
	// ErrorKindMalformed indicates a syntactically invalid frame. Codec-level,
	// non-fatal: the frame is dropped with a logged warning.
	ErrorKindMalformed ErrorKind = "malformed"
	// ErrorKindSchemaMismatch indicates a frame field of unexpected type.
	// Codec-level, non-fatal.
	ErrorKindSchemaMismatch ErrorKind = "schema_mismatch"
	// ErrorKindUnknownTool indicates the requested tool is not registered.
	ErrorKindUnknownTool ErrorKind = "unknown_tool"
	// ErrorKindInvalidArguments indicates a missing required argument, an
	// undeclared argument, or an argument type mismatch.
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	// ErrorKindExecutionFailed indicates the tool handler failed, panicked, or
	// produced a value violating its declared output schema.
	ErrorKindExecutionFailed ErrorKind = "execution_failed"
	// ErrorKindTimeout indicates the caller's deadline elapsed before a
	// response arrived. Resolved locally; a late response is discarded.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindConnectionClosed indicates the underlying transport closed.
	// The only kind that resolves every outstanding call simultaneously.
	ErrorKindConnectionClosed ErrorKind = "connection_closed"
	// ErrorKindDuplicateTool indicates a registration-time name collision.
	// Fatal at startup only, never seen on the wire.
	ErrorKindDuplicateTool ErrorKind = "duplicate_tool"
)

// ParamType is the semantic type of a tool parameter or result, matching the
// JSON type the value must carry on the wire.
type ParamType string

// Semantic types usable in input and output schemas.
const (
	ParamNumber  ParamType = "number"
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
	// ParamAny accepts any JSON value.
	ParamAny ParamType = "any"
)

// Param describes a single tool parameter.
type Param struct {
	Type        ParamType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ToolDescriptor describes a named, schema-described operation exposed by a
// server. Descriptors are immutable once registered and owned exclusively by
// the Registry.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// InputSchema maps each parameter name to its semantic type and
	// required flag.
	InputSchema map[string]Param `json:"inputSchema,omitempty"`

	// OutputSchema is the semantic type of the tool's result.
	OutputSchema ParamType `json:"outputSchema,omitempty"`
}

// Message represents one protocol frame. Which fields are populated depends
// on Type:
//   - TypeDiscover: no other fields
//   - TypeTools: Tools
//   - TypeCall: ID, Tool, Arguments
//   - TypeResult: ID, Result
//   - TypeError: ID, Kind, Message
type Message struct {
	Type MessageType `json:"type"`

	// ID correlates a call with its response. IDs are assigned monotonically
	// by the initiator and never reused within a session.
	ID uint64 `json:"id,omitempty"`

	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	Tools []ToolDescriptor `json:"tools,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`

	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// DecodeError reports a frame that could not be decoded. Kind is either
// ErrorKindMalformed or ErrorKindSchemaMismatch.
type DecodeError struct {
	Kind ErrorKind
	// Field names the offending field for schema mismatches, when known.
	Field string

	err error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode frame: %s on field %q: %v", e.Kind, e.Field, e.err)
	}
	return fmt.Sprintf("decode frame: %s: %v", e.Kind, e.err)
}

func (e *DecodeError) Unwrap() error { return e.err }

// CallError is the structured error a caller receives when an invocation
// fails at any layer. It is the only error type that crosses the call
// boundary for protocol-level failures.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call error, kind: %s, message: %s", e.Kind, e.Message)
}

// EncodeMessage serializes a message into a transport-neutral frame. The
// transform is pure; stream transports append their own delimiter.
func EncodeMessage(msg Message) ([]byte, error) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return frame, nil
}

// DecodeMessage deserializes a frame. Syntactically invalid input yields a
// DecodeError of kind ErrorKindMalformed; a field of unexpected JSON type or
// an unknown frame type yields ErrorKindSchemaMismatch. Trailing whitespace
// from stream delimiters is tolerated.
func DecodeMessage(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(bytes.TrimSpace(frame), &msg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Message{}, &DecodeError{Kind: ErrorKindSchemaMismatch, Field: typeErr.Field, err: err}
		}
		return Message{}, &DecodeError{Kind: ErrorKindMalformed, err: err}
	}

	switch msg.Type {
	case TypeDiscover, TypeTools, TypeCall, TypeResult, TypeError:
	default:
		return Message{}, &DecodeError{
			Kind:  ErrorKindSchemaMismatch,
			Field: "type",
			err:   fmt.Errorf("unknown frame type %q", msg.Type),
		}
	}

	return msg, nil
}

func errorMessage(id uint64, kind ErrorKind, text string) Message {
	return Message{
		Type:    TypeError,
		ID:      id,
		Kind:    kind,
		Message: text,
	}
}
