package toolbus_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MegaGrindStone/go-toolbus"
)

func newTestDispatcher(t *testing.T, invoked *bool) toolbus.Dispatcher {
	t.Helper()

	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{
		Name: "add",
		InputSchema: map[string]toolbus.Param{
			"a": {Type: toolbus.ParamNumber, Required: true},
			"b": {Type: toolbus.ParamNumber, Required: true},
		},
		OutputSchema: toolbus.ParamNumber,
	}, func(_ context.Context, args map[string]any) (any, error) {
		if invoked != nil {
			*invoked = true
		}
		return args["a"].(float64) + args["b"].(float64), nil
	})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}

	return toolbus.NewDispatcher(reg, nil)
}

func callFrame(tool string, args map[string]any) toolbus.Message {
	return toolbus.Message{
		Type:      toolbus.TypeCall,
		ID:        1,
		Tool:      tool,
		Arguments: args,
	}
}

func TestDispatcherListTools(t *testing.T) {
	d := newTestDispatcher(t, nil)

	msg := d.ListTools()
	if msg.Type != toolbus.TypeTools {
		t.Fatalf("got type %s, want %s", msg.Type, toolbus.TypeTools)
	}
	if len(msg.Tools) != 1 || msg.Tools[0].Name != "add" {
		t.Errorf("got tools %v, want [add]", msg.Tools)
	}
}

func TestDispatcherSuccess(t *testing.T) {
	d := newTestDispatcher(t, nil)

	resp := d.Handle(context.Background(), callFrame("add", map[string]any{"a": float64(2), "b": float64(3)}))
	if resp.Type != toolbus.TypeResult {
		t.Fatalf("got type %s (%s), want %s", resp.Type, resp.Message, toolbus.TypeResult)
	}
	if resp.ID != 1 {
		t.Errorf("got id %d, want 1", resp.ID)
	}
	if string(resp.Result) != "5" {
		t.Errorf("got result %s, want 5", resp.Result)
	}
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, nil)

	resp := d.Handle(context.Background(), callFrame("sub", nil))
	if resp.Type != toolbus.TypeError {
		t.Fatalf("got type %s, want %s", resp.Type, toolbus.TypeError)
	}
	if resp.Kind != toolbus.ErrorKindUnknownTool {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindUnknownTool)
	}
	if !strings.Contains(resp.Message, `"sub"`) {
		t.Errorf("expected message to name the tool, got %q", resp.Message)
	}
}

func TestDispatcherArgumentValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		wantInError string
	}{
		{
			name:        "missing required argument",
			args:        map[string]any{"a": float64(1)},
			wantInError: `missing required argument "b"`,
		},
		{
			name:        "argument of wrong type",
			args:        map[string]any{"a": "one", "b": float64(2)},
			wantInError: `argument "a" must be of type number`,
		},
		{
			name:        "undeclared argument",
			args:        map[string]any{"a": float64(1), "b": float64(2), "c": float64(3)},
			wantInError: `unknown argument "c"`,
		},
		{
			name:        "deterministic offender among several",
			args:        map[string]any{"a": "one", "b": "two"},
			wantInError: `argument "a" must be of type number`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoked := false
			d := newTestDispatcher(t, &invoked)

			resp := d.Handle(context.Background(), callFrame("add", tt.args))
			if resp.Type != toolbus.TypeError {
				t.Fatalf("got type %s, want %s", resp.Type, toolbus.TypeError)
			}
			if resp.Kind != toolbus.ErrorKindInvalidArguments {
				t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindInvalidArguments)
			}
			if !strings.Contains(resp.Message, tt.wantInError) {
				t.Errorf("got message %q, want it to contain %q", resp.Message, tt.wantInError)
			}
			if invoked {
				t.Error("handler must not run when validation fails")
			}
		})
	}
}

func TestDispatcherHandlerError(t *testing.T) {
	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{Name: "fail"},
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("division by zero")
		})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), callFrame("fail", nil))
	if resp.Kind != toolbus.ErrorKindExecutionFailed {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindExecutionFailed)
	}
	if !strings.Contains(resp.Message, "division by zero") {
		t.Errorf("expected handler error in message, got %q", resp.Message)
	}
}

func TestDispatcherHandlerPanic(t *testing.T) {
	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{Name: "boom"},
		func(context.Context, map[string]any) (any, error) {
			panic("kaput")
		})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), callFrame("boom", nil))
	if resp.Type != toolbus.TypeError {
		t.Fatalf("got type %s, want %s", resp.Type, toolbus.TypeError)
	}
	if resp.Kind != toolbus.ErrorKindExecutionFailed {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindExecutionFailed)
	}
	if !strings.Contains(resp.Message, "kaput") {
		t.Errorf("expected panic value in message, got %q", resp.Message)
	}
}

func TestDispatcherOutputSchemaViolation(t *testing.T) {
	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{
		Name:         "liar",
		OutputSchema: toolbus.ParamNumber,
	}, func(context.Context, map[string]any) (any, error) {
		return "not a number", nil
	})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), callFrame("liar", nil))
	if resp.Kind != toolbus.ErrorKindExecutionFailed {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindExecutionFailed)
	}
	if !strings.Contains(resp.Message, "output schema") {
		t.Errorf("expected output schema violation in message, got %q", resp.Message)
	}
}

func TestDispatcherAnyOutputSchemaSkipsCheck(t *testing.T) {
	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{
		Name:         "wildcard",
		OutputSchema: toolbus.ParamAny,
	}, func(context.Context, map[string]any) (any, error) {
		return []any{"mixed", float64(1), true}, nil
	})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), callFrame("wildcard", nil))
	if resp.Type != toolbus.TypeResult {
		t.Fatalf("got type %s (%s), want %s", resp.Type, resp.Message, toolbus.TypeResult)
	}
}
