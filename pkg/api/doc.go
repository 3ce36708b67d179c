/*
Package api implements the admin façade in front of a
*coordinator.Coordinator: queue_task, cancel_task, task_statuses, and
pool/node inspection, exposed over a second yamux+net/rpc listener
separate from the Node/Worker control plane in pkg/coordinator.

# Architecture

	┌────────────── CLI (pkg/client) ──────────────┐
	│                                               │
	│   yamux session, net/rpc "Admin" receiver     │
	└───────────────────┬───────────────────────────┘
	                     │ TCP, shared-secret login
	┌────────────────────▼──── MASTER PROCESS ──────┐
	│                                                │
	│   pkg/api.Server                               │
	│     - Admin.Login / QueueTask / CancelTask     │
	│     - Admin.TaskStatuses / KnownNodes          │
	│     - Admin.PromoteNode / ForgetNode           │
	│     - Admin.PoolStats                          │
	│                                                │
	│   pkg/api.HealthServer (plain HTTP)            │
	│     - /health /ready /metrics                  │
	│                                                │
	└───────────────────┬────────────────────────────┘
	                     │
	           *coordinator.Coordinator

# Authentication

The TCP listener gates every method but Login behind a fixed shared
secret (pkg/api.Server's secret argument); this is explicitly not a
real security boundary, matching spec.md §1's scoping of admin-gateway
auth as out of core scope. A second, read-only listener is available
over a Unix domain socket (StartUnixSocket) for local operators who
should see status but not mutate cluster state, without needing the
secret at all.

# Health and metrics

HealthServer is a conventional net/http server independent of the
admin façade's RPC listener: /health is a liveness probe, /ready checks
the coordinator's storage is reachable, and /metrics serves the
Prometheus registry from pkg/metrics.
*/
package api
