// Package config loads the livefeed server configuration from a YAML file.
//
// Sections:
//   - server    — HTTP port (default 3000), shutdown timeout, log level
//   - store     — backend ("memory" or "sqlite") and SQLite DSN
//   - generator — warm-up size, tick interval, batch size, operation weights,
//     timestamp offset range and body length
//   - hub       — subscription path (default "/data"), per-client buffer and
//     WebSocket timeouts
//
// Load(path) applies defaults before unmarshalling, then validates.
// Default() returns the configuration used when no file is given.
// Watch(ctx, path, fn) reloads the file on change.
package config
