// Package webhooks contains the steps a webhook chain is assembled from.
//
// Every step implements inbound.Handler. Steps that reject a request return a
// classified go-errors value and never call next; steps that pass call next
// with the request they received.
package webhooks
