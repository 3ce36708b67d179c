// Package events provides a lightweight in-memory pub/sub broker for
// coordinator lifecycle events: node pairing/loss, worker state changes,
// and task queued/running/completed/failed/cancelled transitions.
//
// Delivery is best-effort: a subscriber with a full buffer drops the
// event rather than block the broker. Nothing in the coordinator's
// correctness depends on a subscriber actually observing an event.
package events
