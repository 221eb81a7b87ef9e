// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
// The CLI is the only consumer; it polls task snapshots rather than holding a
// push subscription.
package ipc
