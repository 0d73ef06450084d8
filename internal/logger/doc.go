// Package logger wraps zap for the updater binaries and library code:
//   - a global sugared logger writing console entries to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing and configuration used by the --log-level flag,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Portal calls, Flathub checks and the watcher all take a context and log
// through the logger stored in it.
package logger
