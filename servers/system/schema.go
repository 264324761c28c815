package system

import "github.com/MegaGrindStone/go-toolbus"

var echoSchema = map[string]toolbus.Param{
	"message": {
		Type:        toolbus.ParamString,
		Required:    true,
		Description: "The message to echo back.",
	},
}

var toolList = []toolbus.ToolDescriptor{
	{
		Name:         "get_system_info",
		Description:  "Report information about the host running the server.",
		OutputSchema: toolbus.ParamObject,
	},
	{
		Name:         "echo",
		Description:  "Return the given message unchanged.",
		InputSchema:  echoSchema,
		OutputSchema: toolbus.ParamString,
	},
}
