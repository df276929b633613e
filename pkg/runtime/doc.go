// Package runtime compiles a published configuration snapshot into an
// indexed, immutable Config the data plane can match requests against
// without touching storage or taking a lock per request.
//
// Build is a pure function: Snapshot in, Config out. The data plane
// swaps its Config wholesale whenever a new snapshot arrives, so a
// request in flight always sees one consistent configuration, never a
// mix of old and new routes.
package runtime
