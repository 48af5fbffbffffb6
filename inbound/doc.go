// Package inbound contains the webhook handler chain.
//
// A chain is an ordered list of steps, each receiving the request and a
// continuation for the rest of the chain. Steps can short-circuit, retry the
// remainder or hand a rewritten request downstream.
//
// Replay protection uses claim/complete/fail semantics so transient handler
// failures remain retryable while completed deliveries are rejected.
package inbound
