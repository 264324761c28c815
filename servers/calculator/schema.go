package calculator

import "github.com/MegaGrindStone/go-toolbus"

var operandsSchema = map[string]toolbus.Param{
	"a": {
		Type:        toolbus.ParamNumber,
		Required:    true,
		Description: "The first operand.",
	},
	"b": {
		Type:        toolbus.ParamNumber,
		Required:    true,
		Description: "The second operand.",
	},
}

var toolList = []toolbus.ToolDescriptor{
	{
		Name:         "add",
		Description:  "Add two numbers together.",
		InputSchema:  operandsSchema,
		OutputSchema: toolbus.ParamNumber,
	},
	{
		Name:         "subtract",
		Description:  "Subtract the second number from the first.",
		InputSchema:  operandsSchema,
		OutputSchema: toolbus.ParamNumber,
	},
	{
		Name:         "multiply",
		Description:  "Multiply two numbers together.",
		InputSchema:  operandsSchema,
		OutputSchema: toolbus.ParamNumber,
	},
	{
		Name:         "divide",
		Description:  "Divide the first number by the second.",
		InputSchema:  operandsSchema,
		OutputSchema: toolbus.ParamNumber,
	},
}
