// Package alert tells operators about runs that left payouts needing review.
//
// After a run whose summary reports variances, failures or stale pending
// payouts, the Service collects the affected transactions and hands an
// Alert to every configured Notifier. The log notifier is always present;
// a webhook notifier is added when ALERT_BASE_URL is set.
package alert
