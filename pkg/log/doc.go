// Package log captures protocol events for iotcon.
//
// Operational logging uses slog. This package records a machine-readable
// trace of what crosses the IPC socket, what the dispatcher issues and
// resolves, and what the network stack reports, so that a session can be
// replayed with iotcon-log.
//
//	rec := log.NewRecorder(log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	), log.RoleDaemon)
//	rec.Call(connID, log.DirectionIn, id, "Get", body)
//
// Capture files hold a stream of CBOR-encoded Events and use the .ilog
// extension.
package log
