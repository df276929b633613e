// Package health provides PoolChecker, which probes upstream targets
// over TCP to track their availability, pacing those probes per
// upstream pool rather than on one shared global interval: a pool
// configured for a fast check cadence never waits behind one
// configured for a slow cadence.
//
// Checks are immediate and binary — a single failed probe marks a
// target unhealthy, a single successful one marks it healthy again.
// There is no failure-streak hysteresis; load-balancing policies in
// pkg/runtime are themselves tolerant of a target flapping between
// the two states.
package health
