// Package apiclient is the HTTP plumbing shared by the processor and ledger
// connectors.
//
// A Client owns a tuned transport, a bearer token and a client side rate
// limiter. Responses are decoded with goccy/go-json. Failures are mapped for
// the reconciliation backoff controller:
//
//   - 4xx and 5xx responses become *reconcile.ExternalError with the status
//     code and any Retry-After delay.
//   - Connection failures become status 0 errors. They are marked Ambiguous
//     unless the request provably never reached the server.
//   - Undecodable bodies wrap reconcile.ErrMalformedPayload and are never
//     retried.
package apiclient
