/*
Package storage provides the bbolt-backed entity store for the control
plane: CRUD for the six snapshot entity kinds (listeners, routes,
upstream pools, upstream targets, TLS policies, certificates) plus
ConfigVersion (publish/rollback history), NodeRecord (per-node last
applied version), and AuditLog (best-effort record of mutating admin
actions).

Each entity kind lives in its own bucket, keyed by its UUID (node
records by their node ID), with values
JSON-marshaled — the same layout the control plane's predecessor used
for cluster state, carried over here because it scales fine to this
gateway's much smaller entity counts and needs no extra dependency.
*/
package storage
