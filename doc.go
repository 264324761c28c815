// Package toolbus implements a tool-invocation protocol between a server
// process that exposes named, schema-described operations and clients that
// discover and invoke them over an abstract duplex message channel.
//
// The package provides the wire codec, the tool registry, the server-side
// dispatcher, and the client-side correlation manager, plus stdio, SSE, and
// WebSocket transports behind the same Session interface.
package toolbus
