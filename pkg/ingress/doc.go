/*
Package ingress is the data plane: the process that terminates client
HTTP(S) connections and forwards them to upstream targets. It holds no
state of its own beyond a compiled *runtime.Config, swapped wholesale
whenever the node loop applies a newly published snapshot.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                          Proxy                              │
	│  pre-bound sockets across HTTP_PORT_RANGE / HTTPS_PORT_RANGE│
	└───────────────┬──────────────────────────────────────────────┘
	                │ per request
	                ▼
	  ACME challenge? ──yes──▶ pkg/acme.ChallengeClient.Fetch
	                │no
	                ▼
	  port → runtime.Config.ListenersByPort
	                │
	                ▼
	  listener.ID → runtime.Config.Match (route, in priority order)
	                │
	                ▼
	  route.UpstreamPoolID → runtime.Config.PickTarget
	                │
	                ▼
	  httputil.ReverseProxy → target.Address()

Every port in the configured ranges is bound once, at startup — a
listener published on a port that already has an open socket starts
answering immediately, with no restart. If no ranges are configured,
the proxy instead binds only the ports the Config's listeners declare
at startup, and a publish that adds a new listener port needs a
restart to pick it up.

# Routing

A downstream connection's port identifies its listener; the listener's
routes are tried in descending priority order, and the first whose
match_expr accepts the request wins. Port-kind routes match everything
bound to their listener (the port lookup already selected them); path
and websocket routes defer to the compiled RouteMatcher.

# Load balancing

PickTarget increments the chosen target's in-flight counter; the
caller must Release it exactly once the request finishes, success or
not. Every policy falls back to considering unhealthy targets rather
than refusing the request outright if none are currently healthy.

# Metrics

Every request observes gateway_requests_inflight,
gateway_request_duration_seconds (by method and status), and
gateway_upstream_errors_total (by failure reason) — see pkg/metrics.
*/
package ingress
