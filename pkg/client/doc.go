// Package client is a thin HTTP/JSON client for the control plane's
// admin API, used by cmd/gateway's apply subcommand to turn a YAML
// manifest into listener/route/pool/target/tls-policy/certificate
// entities, and to drive validate/publish/rollback.
package client
