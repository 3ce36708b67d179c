// Package metrics registers taskmaster's Prometheus gauges, counters,
// and histograms (queue depth, worker pool occupancy, dispatch latency,
// reconnect attempts, task completions by completion_type) and exposes
// them via Handler for scraping, plus HTTP liveness/readiness/health
// endpoints and a Collector that periodically samples the coordinator.
package metrics
