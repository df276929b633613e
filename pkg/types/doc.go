/*
Package types defines the entity model shared by the control plane and
the data plane.

A Snapshot bundles six entity collections — listeners, routes, upstream
pools, upstream targets, TLS policies, and certificates — into the unit
that gets validated, published, and handed to data-plane nodes. Two
further types, ConfigVersion and NodeRecord, exist only on the control
plane: the former records snapshot history for rollback, the latter
tracks which version each node last applied.

# Enumeration pattern

Enums use typed string constants, matching the rest of this codebase:

	type ListenerProtocol string
	const (
		ProtocolHTTP  ListenerProtocol = "http"
		ProtocolHTTPS ListenerProtocol = "https"
	)

# Thread safety

Values in this package carry no synchronization of their own. A
Snapshot, once built, is treated as immutable and shared by value
across goroutines; callers that mutate entities must do so through the
entity store and republish.
*/
package types
