// Command stdio runs a tool server and client in one process, wired together
// through in-memory pipes, and walks through discovery and a few calls.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/go-toolbus"
	"github.com/MegaGrindStone/go-toolbus/servers/calculator"
	"github.com/MegaGrindStone/go-toolbus/servers/filesystem"
	"github.com/MegaGrindStone/go-toolbus/servers/system"
	"github.com/MegaGrindStone/go-toolbus/servers/weather"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg := toolbus.NewRegistry()
	if err := calculator.Register(reg); err != nil {
		log.Fatal(err)
	}
	if err := weather.Register(reg); err != nil {
		log.Fatal(err)
	}
	if err := system.Register(reg); err != nil {
		log.Fatal(err)
	}

	dir, err := os.MkdirTemp("", "toolbus-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	fs, err := filesystem.NewServer(dir)
	if err != nil {
		log.Fatal(err)
	}
	if err := fs.Register(reg); err != nil {
		log.Fatal(err)
	}

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	srvTransport := toolbus.NewStdIO(serverReader, serverWriter)
	cliTransport := toolbus.NewStdIO(clientReader, clientWriter)

	srv := toolbus.NewServer(reg, srvTransport, toolbus.WithServerLogger(logger))
	go srv.Serve()

	cli := toolbus.NewClient(cliTransport, toolbus.WithClientLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cli.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	fmt.Println("Discovered tools:")
	for _, tool := range cli.Tools() {
		fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
	}
	fmt.Println()

	call(ctx, cli, "add", map[string]any{"a": 2, "b": 3})
	call(ctx, cli, "divide", map[string]any{"a": 10, "b": 4})
	call(ctx, cli, "divide", map[string]any{"a": 1, "b": 0})
	call(ctx, cli, "get_weather", map[string]any{"city": "Tokyo"})
	call(ctx, cli, "echo", map[string]any{"message": "hello"})
	call(ctx, cli, "write_file", map[string]any{"path": "notes.txt", "content": "first line\n"})
	call(ctx, cli, "list_files", map[string]any{"pattern": "*.txt"})
	call(ctx, cli, "add", map[string]any{"a": "two", "b": 3})
	call(ctx, cli, "does_not_exist", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Print(err)
	}
}

func call(ctx context.Context, cli *toolbus.Client, tool string, args map[string]any) {
	result, err := cli.Call(ctx, tool, args)
	if err != nil {
		fmt.Printf("%s(%v) failed: %s\n", tool, args, err)
		return
	}
	fmt.Printf("%s(%v) = %s\n", tool, args, result)
}
