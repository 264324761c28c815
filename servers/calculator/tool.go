// Package calculator provides basic arithmetic tools.
package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MegaGrindStone/go-toolbus"
)

// Register adds the arithmetic tools to reg.
func Register(reg *toolbus.Registry) error {
	handlers := map[string]toolbus.Handler{
		"add":      add,
		"subtract": subtract,
		"multiply": multiply,
		"divide":   divide,
	}

	for _, desc := range toolList {
		if err := reg.Register(desc, handlers[desc.Name]); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", desc.Name, err)
		}
	}
	return nil
}

func add(_ context.Context, args map[string]any) (any, error) {
	a, b, err := operands(args)
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func subtract(_ context.Context, args map[string]any) (any, error) {
	a, b, err := operands(args)
	if err != nil {
		return nil, err
	}
	return a - b, nil
}

func multiply(_ context.Context, args map[string]any) (any, error) {
	a, b, err := operands(args)
	if err != nil {
		return nil, err
	}
	return a * b, nil
}

func divide(_ context.Context, args map[string]any) (any, error) {
	a, b, err := operands(args)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, errors.New("division by zero")
	}
	return a / b, nil
}

func operands(args map[string]any) (float64, float64, error) {
	a, err := asNumber(args["a"])
	if err != nil {
		return 0, 0, fmt.Errorf("operand a: %w", err)
	}
	b, err := asNumber(args["b"])
	if err != nil {
		return 0, 0, fmt.Errorf("operand b: %w", err)
	}
	return a, b, nil
}

func asNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("value %v is not a number", value)
	}
}
