// Package acme implements the two touch points the gateway needs for
// ACME HTTP-01 challenges: a control-plane ChallengeStore holding the
// token → key-authorization map while an order is in progress, and a
// data-plane ChallengeClient the proxy uses to fetch a key
// authorization by token when it sees a request under
// /.well-known/acme-challenge/. Obtaining the certificate from an ACME
// directory is out of scope; this package only carries the challenge
// response across the control/data-plane boundary.
package acme
