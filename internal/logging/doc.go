// Package logging wraps zap with configuration and context plumbing for
// embedstream.
//
// Loggers are context-aware: correlation fields (request ID) stored on the
// context are attached to every entry. A Trace level below Debug is available
// for wire-level detail.
package logging
