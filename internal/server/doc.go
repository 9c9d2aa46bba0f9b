// Package server exposes the EchoBoard transport layer: the WebSocket
// endpoint with its per-connection read/write pumps, the REST surface for
// creating and inspecting boards, origin enforcement, and per-connection
// rate limiting.
//
// The package translates wire frames into board operations and forwards
// board events back out; all board semantics live in the board package.
package server
