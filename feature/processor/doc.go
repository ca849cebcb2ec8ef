// Package processor connects the reconciler to the payment processor API.
//
// Source pages through GET /v1/payouts with limit, cursor and created_after
// parameters and expects
//
//	{"data": [{"id", "gross_amount", "fees", "net_amount", "payout_date", "currency"}], "next_cursor": "..."}
//
// An empty next_cursor ends the stream. Every payout on a page is parsed
// strictly: a missing id, net_amount or payout_date fails the whole page with
// reconcile.ErrMalformedPayload.
package processor
