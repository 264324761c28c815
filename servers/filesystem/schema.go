package filesystem

import "github.com/MegaGrindStone/go-toolbus"

var readFileSchema = map[string]toolbus.Param{
	"path": {
		Type:        toolbus.ParamString,
		Required:    true,
		Description: "Path of the file to read, relative to the allowed directory.",
	},
}

var writeFileSchema = map[string]toolbus.Param{
	"path": {
		Type:        toolbus.ParamString,
		Required:    true,
		Description: "Path of the file to write, relative to the allowed directory.",
	},
	"content": {
		Type:        toolbus.ParamString,
		Required:    true,
		Description: "The full content to write.",
	},
}

var listFilesSchema = map[string]toolbus.Param{
	"path": {
		Type:        toolbus.ParamString,
		Description: "Directory to list, relative to the allowed directory. Defaults to the allowed directory itself.",
	},
	"pattern": {
		Type:        toolbus.ParamString,
		Description: "Optional glob pattern filtering the returned names, e.g. *.txt.",
	},
}

var toolList = []toolbus.ToolDescriptor{
	{
		Name:         "read_file",
		Description:  "Read the complete contents of a file. Only works within the allowed directory.",
		InputSchema:  readFileSchema,
		OutputSchema: toolbus.ParamString,
	},
	{
		Name: "write_file",
		Description: "Create or overwrite a file with the given content and return a diff " +
			"of the change. Only works within the allowed directory.",
		InputSchema:  writeFileSchema,
		OutputSchema: toolbus.ParamString,
	},
	{
		Name:         "list_files",
		Description:  "List the entries of a directory, optionally filtered by a glob pattern.",
		InputSchema:  listFilesSchema,
		OutputSchema: toolbus.ParamArray,
	},
}
