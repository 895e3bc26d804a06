// Package diag collects the diagnostics produced by constraints, observers
// and dispatch failures.
//
// A Result is an ordered list of Messages plus a silent flag. The pipeline
// never raises on behalf of a single failing rule or observer; it records
// a Message instead and leaves the "fail the session" decision to the
// caller through Result.Err.
package diag
