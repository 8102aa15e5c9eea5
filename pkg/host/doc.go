// Package host is the integration layer between a host process and the dispatcher.
//
// A Handle owns one Dispatcher. Close shuts it down and is idempotent; after Close,
// or on a nil Handle, Publish fails with ErrHandleDestroyed. Hosts that can only pass
// integers across their boundary use a Registry, which maps ids to handles and
// treats an unknown id as an already destroyed handle.
//
// The caller must not run Close concurrently with itself on the same handle from two
// owners; Publish may race with Close and then fails deterministically.
package host
