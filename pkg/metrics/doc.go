// Package metrics registers the gateway's Prometheus metrics at init
// time and exposes a Handler for /metrics. Collector periodically
// mirrors upstream target health into gateway_target_healthy, since
// that state otherwise only lives on atomic fields inside a
// runtime.Config the proxy holds directly.
package metrics
