// Package scheduler drives the reconciliation engine unattended.
//
// A Scheduler fires runs on a fixed interval, once at startup when
// configured, and on demand through Trigger (used by POST /runs). The engine
// rejects overlapping runs, so a tick that arrives while a run is still
// active is logged and dropped. Retention pruning follows every run.
//
// Cancelling the context passed to Start stops the schedule. The engine
// treats the same cancellation as a stop signal: it finishes in-flight
// payouts and flushes pending corrections before the run returns.
package scheduler
