// Package logging provides a simple leveled logging interface for the
// media pipeline.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The initial log level comes from the LOG_LEVEL (or DEBUG) environment
// variable and can be overridden with SetLevel once configuration is loaded.
package logging
