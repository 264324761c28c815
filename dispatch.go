package toolbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// Dispatcher turns decoded call frames into response frames. It validates
// requests against the registry, invokes the matching handler, and converts
// every failure mode into a structured error frame; a handler is never
// allowed to terminate the dispatch loop.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher backed by the given registry. A nil
// logger falls back to slog.Default.
func NewDispatcher(registry *Registry, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return Dispatcher{
		registry: registry,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// ListTools answers a discovery request with the registry's tool list.
func (d Dispatcher) ListTools() Message {
	return Message{
		Type:  TypeTools,
		Tools: d.registry.List(),
	}
}

// Handle executes one call frame and produces its response frame. Multiple
// Handle invocations may run concurrently.
func (d Dispatcher) Handle(ctx context.Context, req Message) Message {
	desc, handler, ok := d.registry.Lookup(req.Tool)
	if !ok {
		return errorMessage(req.ID, ErrorKindUnknownTool,
			fmt.Sprintf("tool %q is not registered", req.Tool))
	}

	if err := validateArguments(desc, req.Arguments); err != nil {
		return errorMessage(req.ID, ErrorKindInvalidArguments, err.Error())
	}

	value, err := d.invoke(ctx, req.Tool, handler, req.Arguments)
	if err != nil {
		d.logger.Warn("tool execution failed",
			slog.String("tool", req.Tool),
			slog.Uint64("id", req.ID),
			slog.String("err", err.Error()))
		return errorMessage(req.ID, ErrorKindExecutionFailed, err.Error())
	}

	result, err := marshalResult(desc, value)
	if err != nil {
		// An output schema violation indicates a faulty tool implementation,
		// not a client fault.
		d.logger.Error("tool produced invalid result",
			slog.String("tool", req.Tool),
			slog.String("err", err.Error()))
		return errorMessage(req.ID, ErrorKindExecutionFailed, err.Error())
	}

	return Message{
		Type:   TypeResult,
		ID:     req.ID,
		Result: result,
	}
}

func (d Dispatcher) invoke(
	ctx context.Context,
	tool string,
	handler Handler,
	args map[string]any,
) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool, r)
		}
	}()

	return handler(ctx, args)
}

// validateArguments checks args against the tool's input schema before the
// handler ever runs. Parameter names are visited in sorted order so the
// offending parameter named in the error is deterministic.
func validateArguments(desc ToolDescriptor, args map[string]any) error {
	names := make([]string, 0, len(desc.InputSchema))
	for name := range desc.InputSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param := desc.InputSchema[name]
		value, ok := args[name]
		if !ok {
			if param.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		if !matchesType(value, param.Type) {
			return fmt.Errorf("argument %q must be of type %s", name, param.Type)
		}
	}

	extras := make([]string, 0)
	for name := range args {
		if _, ok := desc.InputSchema[name]; !ok {
			extras = append(extras, name)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		return fmt.Errorf("unknown argument %q", extras[0])
	}

	return nil
}

// marshalResult serializes a handler's value and verifies it conforms to the
// declared output schema. Conformance is checked on the wire form so the
// handler is free to return any Go value that marshals to the right JSON
// type.
func marshalResult(desc ToolDescriptor, value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("tool %q result cannot be serialized: %w", desc.Name, err)
	}

	if desc.OutputSchema == "" || desc.OutputSchema == ParamAny {
		return raw, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("tool %q result cannot be verified: %w", desc.Name, err)
	}
	if !matchesType(decoded, desc.OutputSchema) {
		return nil, fmt.Errorf("tool %q result does not conform to output schema %s",
			desc.Name, desc.OutputSchema)
	}

	return raw, nil
}

func matchesType(value any, t ParamType) bool {
	switch t {
	case ParamAny:
		return true
	case ParamNumber:
		switch value.(type) {
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, json.Number:
			return true
		}
		return false
	case ParamString:
		_, ok := value.(string)
		return ok
	case ParamBoolean:
		_, ok := value.(bool)
		return ok
	case ParamObject:
		_, ok := value.(map[string]any)
		return ok
	case ParamArray:
		_, ok := value.([]any)
		return ok
	default:
		return false
	}
}
