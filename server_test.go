package toolbus_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/MegaGrindStone/go-toolbus"
)

func addRegistry(t *testing.T) *toolbus.Registry {
	t.Helper()

	reg := toolbus.NewRegistry()
	err := reg.Register(toolbus.ToolDescriptor{
		Name: "add",
		InputSchema: map[string]toolbus.Param{
			"a": {Type: toolbus.ParamNumber, Required: true},
			"b": {Type: toolbus.ParamNumber, Required: true},
		},
		OutputSchema: toolbus.ParamNumber,
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	return reg
}

// TestServerRawFrameExchange drives the server with hand-built frames over an
// in-memory stdio transport, checking the response to each request shape.
func TestServerRawFrameExchange(t *testing.T) {
	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	serverTransport := toolbus.NewStdIO(serverReader, serverWriter)
	clientTransport := toolbus.NewStdIO(clientReader, clientWriter)

	srv := toolbus.NewServer(addRegistry(t), serverTransport)
	go srv.Serve()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("failed to shutdown server: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := clientTransport.StartSession(ctx)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	defer sess.Stop()

	received := make(chan toolbus.Message, 16)
	go func() {
		for msg := range sess.Messages() {
			received <- msg
		}
	}()

	recv := func() toolbus.Message {
		select {
		case msg := <-received:
			return msg
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for response frame")
			return toolbus.Message{}
		}
	}

	// Discovery returns the registered tool list.
	if err := sess.Send(ctx, toolbus.Message{Type: toolbus.TypeDiscover}); err != nil {
		t.Fatalf("failed to send discover frame: %v", err)
	}
	msg := recv()
	if msg.Type != toolbus.TypeTools {
		t.Fatalf("got type %s, want %s", msg.Type, toolbus.TypeTools)
	}
	if len(msg.Tools) != 1 || msg.Tools[0].Name != "add" {
		t.Fatalf("got tools %v, want [add]", msg.Tools)
	}

	// An unregistered tool is answered with unknown_tool carrying the id.
	if err := sess.Send(ctx, toolbus.Message{Type: toolbus.TypeCall, ID: 1, Tool: "sub"}); err != nil {
		t.Fatalf("failed to send call frame: %v", err)
	}
	msg = recv()
	if msg.Type != toolbus.TypeError || msg.Kind != toolbus.ErrorKindUnknownTool {
		t.Errorf("got type %s kind %s, want %s/%s", msg.Type, msg.Kind, toolbus.TypeError, toolbus.ErrorKindUnknownTool)
	}
	if msg.ID != 1 {
		t.Errorf("got id %d, want 1", msg.ID)
	}

	// Bad argument types are rejected before the handler runs.
	if err := sess.Send(ctx, toolbus.Message{
		Type: toolbus.TypeCall, ID: 2, Tool: "add",
		Arguments: map[string]any{"a": float64(2), "b": "three"},
	}); err != nil {
		t.Fatalf("failed to send call frame: %v", err)
	}
	msg = recv()
	if msg.Kind != toolbus.ErrorKindInvalidArguments {
		t.Errorf("got kind %s, want %s", msg.Kind, toolbus.ErrorKindInvalidArguments)
	}
	if msg.ID != 2 {
		t.Errorf("got id %d, want 2", msg.ID)
	}

	// A response frame sent at the server is discarded, not fatal.
	if err := sess.Send(ctx, toolbus.Message{Type: toolbus.TypeResult, ID: 9, Result: []byte(`1`)}); err != nil {
		t.Fatalf("failed to send result frame: %v", err)
	}

	// The session keeps working after all of the above.
	if err := sess.Send(ctx, toolbus.Message{
		Type: toolbus.TypeCall, ID: 3, Tool: "add",
		Arguments: map[string]any{"a": float64(2), "b": float64(3)},
	}); err != nil {
		t.Fatalf("failed to send call frame: %v", err)
	}
	msg = recv()
	if msg.Type != toolbus.TypeResult {
		t.Fatalf("got type %s (%s), want %s", msg.Type, msg.Message, toolbus.TypeResult)
	}
	if msg.ID != 3 {
		t.Errorf("got id %d, want 3", msg.ID)
	}
	if string(msg.Result) != "5" {
		t.Errorf("got result %s, want 5", msg.Result)
	}
}

func TestServerConcurrentCallsInterleave(t *testing.T) {
	reg := toolbus.NewRegistry()

	release := make(chan struct{})
	err := reg.Register(toolbus.ToolDescriptor{Name: "slow"},
		func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-release:
				return "slow done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}
	err = reg.Register(toolbus.ToolDescriptor{Name: "fast"},
		func(context.Context, map[string]any) (any, error) {
			return "fast done", nil
		})
	if err != nil {
		t.Fatalf("failed to register tool: %v", err)
	}

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	serverTransport := toolbus.NewStdIO(serverReader, serverWriter)
	clientTransport := toolbus.NewStdIO(clientReader, clientWriter)

	srv := toolbus.NewServer(reg, serverTransport)
	go srv.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := clientTransport.StartSession(ctx)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	defer sess.Stop()

	received := make(chan toolbus.Message, 2)
	go func() {
		for msg := range sess.Messages() {
			received <- msg
		}
	}()

	// A blocked slow call must not hold up the fast one behind it.
	if err := sess.Send(ctx, toolbus.Message{Type: toolbus.TypeCall, ID: 1, Tool: "slow"}); err != nil {
		t.Fatalf("failed to send call frame: %v", err)
	}
	if err := sess.Send(ctx, toolbus.Message{Type: toolbus.TypeCall, ID: 2, Tool: "fast"}); err != nil {
		t.Fatalf("failed to send call frame: %v", err)
	}

	select {
	case msg := <-received:
		if msg.ID != 2 {
			t.Fatalf("got response for id %d first, want the fast call (id 2)", msg.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fast call blocked behind slow call")
	}

	close(release)
	select {
	case msg := <-received:
		if msg.ID != 1 {
			t.Errorf("got response for id %d, want the slow call (id 1)", msg.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slow call never resolved")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Errorf("failed to shutdown server: %v", err)
	}
}
