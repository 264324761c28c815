package weather

import "github.com/MegaGrindStone/go-toolbus"

var getWeatherSchema = map[string]toolbus.Param{
	"city": {
		Type:        toolbus.ParamString,
		Required:    true,
		Description: "The city to report the weather for.",
	},
}

var toolList = []toolbus.ToolDescriptor{
	{
		Name:         "get_weather",
		Description:  "Get the current weather conditions for a city.",
		InputSchema:  getWeatherSchema,
		OutputSchema: toolbus.ParamObject,
	},
}
