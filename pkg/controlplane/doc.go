// Package controlplane implements the Publication State Machine
// (BuildSnapshot, Publish, Rollback, and the version-history reads) and
// the admin REST API that exposes it, along with thin CRUD over the
// entity store, node registration/heartbeat, and the ACME challenge
// fetch endpoint the data plane polls.
package controlplane
