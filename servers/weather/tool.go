// Package weather provides a mock weather report tool.
package weather

import (
	"context"
	"fmt"

	"github.com/MegaGrindStone/go-toolbus"
)

type report struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    int     `json:"humidity"`
}

// Canned conditions for a handful of known cities. Unknown cities get a
// generic report rather than an error.
var reports = map[string]report{
	"New York": {City: "New York", Temperature: 22, Condition: "sunny", Humidity: 60},
	"London":   {City: "London", Temperature: 15, Condition: "rainy", Humidity: 80},
	"Tokyo":    {City: "Tokyo", Temperature: 28, Condition: "humid", Humidity: 75},
	"Sydney":   {City: "Sydney", Temperature: 20, Condition: "windy", Humidity: 55},
}

// Register adds the weather tools to reg.
func Register(reg *toolbus.Registry) error {
	for _, desc := range toolList {
		if err := reg.Register(desc, getWeather); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", desc.Name, err)
		}
	}
	return nil
}

func getWeather(_ context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)

	if rep, ok := reports[city]; ok {
		return rep, nil
	}
	return report{
		City:        city,
		Temperature: 18,
		Condition:   "partly cloudy",
		Humidity:    65,
	}, nil
}
