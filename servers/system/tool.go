// Package system provides host introspection and echo tools.
package system

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/MegaGrindStone/go-toolbus"
)

type info struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	NumCPU     int    `json:"numCPU"`
	GoVersion  string `json:"goVersion"`
	Hostname   string `json:"hostname"`
	PID        int    `json:"pid"`
	WorkingDir string `json:"workingDir"`
}

// Register adds the system tools to reg.
func Register(reg *toolbus.Registry) error {
	handlers := map[string]toolbus.Handler{
		"get_system_info": getSystemInfo,
		"echo":            echo,
	}

	for _, desc := range toolList {
		if err := reg.Register(desc, handlers[desc.Name]); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", desc.Name, err)
		}
	}
	return nil
}

func getSystemInfo(_ context.Context, _ map[string]any) (any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}

	return info{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Hostname:   hostname,
		PID:        os.Getpid(),
		WorkingDir: wd,
	}, nil
}

func echo(_ context.Context, args map[string]any) (any, error) {
	message, _ := args["message"].(string)
	return message, nil
}
