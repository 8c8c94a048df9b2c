// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, telemetry and debug introspection for hioload-bridge.
//
// Provides:
//   - Layered configuration (defaults, file, environment) with validation
//   - Config file watching with reload hooks
//   - Prometheus collectors for the event loop and server runtime
//   - Debug probe registration and JSON state export
package control
