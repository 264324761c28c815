package weather_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/MegaGrindStone/go-toolbus"
	"github.com/MegaGrindStone/go-toolbus/servers/weather"
)

func callGetWeather(t *testing.T, city string) map[string]any {
	t.Helper()

	reg := toolbus.NewRegistry()
	if err := weather.Register(reg); err != nil {
		t.Fatalf("failed to register tools: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), toolbus.Message{
		Type:      toolbus.TypeCall,
		ID:        1,
		Tool:      "get_weather",
		Arguments: map[string]any{"city": city},
	})
	if resp.Type != toolbus.TypeResult {
		t.Fatalf("get_weather(%s): got error %s", city, resp.Message)
	}

	var report map[string]any
	if err := json.Unmarshal(resp.Result, &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	return report
}

func TestGetWeatherKnownCity(t *testing.T) {
	report := callGetWeather(t, "Tokyo")

	if report["city"] != "Tokyo" {
		t.Errorf("got city %v, want Tokyo", report["city"])
	}
	if report["condition"] != "humid" {
		t.Errorf("got condition %v, want humid", report["condition"])
	}
}

func TestGetWeatherUnknownCityGetsDefault(t *testing.T) {
	report := callGetWeather(t, "Reykjavik")

	if report["city"] != "Reykjavik" {
		t.Errorf("got city %v, want Reykjavik", report["city"])
	}
	if report["condition"] == "" {
		t.Error("expected a default condition for an unknown city")
	}
	if _, ok := report["temperature"].(float64); !ok {
		t.Errorf("expected numeric temperature, got %v", report["temperature"])
	}
}

func TestGetWeatherRequiresCity(t *testing.T) {
	reg := toolbus.NewRegistry()
	if err := weather.Register(reg); err != nil {
		t.Fatalf("failed to register tools: %v", err)
	}
	d := toolbus.NewDispatcher(reg, nil)

	resp := d.Handle(context.Background(), toolbus.Message{
		Type: toolbus.TypeCall,
		ID:   1,
		Tool: "get_weather",
	})
	if resp.Kind != toolbus.ErrorKindInvalidArguments {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindInvalidArguments)
	}
}
