// Package log wraps zerolog with taskmaster's conventions: a global
// Logger configured once via Init, and scoped child loggers
// (WithComponent, WithNodeID, WithWorkerKey, WithTaskID). The other
// packages use WithComponent and add node, worker, or task identifiers
// as fields on individual log lines.
package log
