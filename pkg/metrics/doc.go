// Package metrics defines Prometheus metrics for the authenticated client,
// covering requests, credential refresh rounds, queued waiters, replays and
// terminal errors.
package metrics
