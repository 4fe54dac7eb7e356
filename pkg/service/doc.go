// Package service runs the iotcon daemon.
//
// A Daemon owns one network stack and serves applications over a unix
// socket. It ties together:
//   - the resource registry and the dispatcher
//   - the transport guard and the worker goroutine driving Process
//   - the IPC method table
//   - optional mDNS presence advertising and browsing
//   - client cleanup when a connection closes
//
// Example usage:
//
//	cfg := service.DefaultDaemonConfig()
//	cfg.SocketPath = "/run/iotcon/iotcond.sock"
//
//	d, err := service.NewDaemon(cfg)
//	if err := d.Start(ctx); err != nil { ... }
//	defer d.Stop()
//
// # Locking
//
// The init lock serializes Start and Stop and is never held by the
// worker. Every stack call goes through a transport.Guard. Stop stops the
// IPC server, cancels and joins the worker, and only then closes the
// stack.
package service
