// Command sse runs the tool server and client over HTTP with Server-Sent
// Events. Start the server with -serve, then run -connect from another
// terminal.
//
// Configuration is read from the environment, optionally through a .env file:
//
//	TOOLBUS_ADDR      listen address for -serve (default :8080)
//	TOOLBUS_BASE_URL  server base URL for -connect (default http://localhost:8080)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/MegaGrindStone/go-toolbus"
	"github.com/MegaGrindStone/go-toolbus/servers/calculator"
	"github.com/MegaGrindStone/go-toolbus/servers/system"
	"github.com/MegaGrindStone/go-toolbus/servers/weather"
)

func main() {
	serve := flag.Bool("serve", false, "run the tool server")
	connect := flag.Bool("connect", false, "run the demo client")
	flag.Parse()

	// A missing .env file is fine; the defaults below apply.
	_ = godotenv.Load()

	switch {
	case *serve:
		runServer()
	case *connect:
		runClient()
	default:
		fmt.Fprintln(os.Stderr, "usage: sse -serve | -connect")
		os.Exit(2)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runServer() {
	addr := envOr("TOOLBUS_ADDR", ":8080")
	baseURL := envOr("TOOLBUS_BASE_URL", "http://localhost:8080")

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

	transport := toolbus.NewSSEServer(baseURL + "/message")

	mux := http.NewServeMux()
	mux.Handle("/sse", transport.HandleSSE())
	mux.Handle("/message", transport.HandleMessage())

	srv := toolbus.NewServer(reg, transport)
	go srv.Serve()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	log.Print("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Print(err)
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Print(err)
	}
}

func runClient() {
	baseURL := envOr("TOOLBUS_BASE_URL", "http://localhost:8080")

	transport := toolbus.NewSSEClient(baseURL+"/sse", nil)
	cli := toolbus.NewClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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
	call(ctx, cli, "multiply", map[string]any{"a": 6, "b": 7})
	call(ctx, cli, "get_weather", map[string]any{"city": "London"})
	call(ctx, cli, "get_system_info", nil)
	call(ctx, cli, "divide", map[string]any{"a": 1, "b": 0})
}

func call(ctx context.Context, cli *toolbus.Client, tool string, args map[string]any) {
	result, err := cli.Call(ctx, tool, args)
	if err != nil {
		fmt.Printf("%s(%v) failed: %s\n", tool, args, err)
		return
	}
	fmt.Printf("%s(%v) = %s\n", tool, args, result)
}
