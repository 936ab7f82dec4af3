// Package gridstream provides a telemetry distribution pipeline for
// device measurements, from broker ingress to persistence and live
// WebSocket delivery.
//
// # Architecture
//
// Measurements arrive on a durable ingress subject and move through
// four stages:
//
//	┌──────────────────┐
//	│ Partition Router │  hash(device_id) mod N
//	└──────────────────┘
//	         │ telemetry.replica.<i>
//	         ▼
//	┌──────────────────┐     ┌────────────────────────┐
//	│    Validator     │◄────│ Topology Materializer  │
//	│   (replica i)    │     │ (per-replica ownership)│
//	└──────────────────┘     └────────────────────────┘
//	         │ persist, then broadcast.events
//	         ▼
//	┌──────────────────┐     ┌──────────────────┐
//	│     Postgres     │     │ Fan-out          │
//	│ raw_measurements │     │ Broadcaster (WS) │
//	└──────────────────┘     └──────────────────┘
//
// The partition router consumes the ingress stream and republishes each
// measurement to one of N replica subjects keyed by device identifier,
// so all traffic for a device lands on the same validator. A message is
// acknowledged only after the republish succeeds.
//
// Each validator replica checks the measurement's device/user pair
// against a local ownership table fed by the device lifecycle event
// stream, persists accepted readings, and then publishes a broadcast
// envelope. Measurements without a matching ownership pair are dropped
// silently; persistence failures leave the message unacknowledged for
// redelivery.
//
// The fan-out broadcaster serves WebSocket clients registered by device
// and by user, delivering each broadcast envelope best effort per
// connection with no backlog for late subscribers.
//
// An HTTP gateway answers historical consumption queries aggregated by
// hour from the measurement store.
//
// # Packages
//
//   - router: partition router component
//   - topology: ownership table and device event materializer
//   - validator: measurement validation and persistence
//   - broadcast: WebSocket fan-out server
//   - gateway/http: consumption history API
//   - storage/postgres: measurement store
//   - message: wire formats and broker subject layout
//   - partition: stable device-to-replica hashing
//   - natsclient: broker client with explicit consume outcomes
//   - component: lifecycle contracts and the component manager
//   - config, metric, errors: configuration, Prometheus metrics, and
//     error classification shared by every component
//
// # Deployment
//
// One binary serves every role; the roles list in configuration selects
// which components a process runs. Validator processes are deployed N
// times with distinct replica indexes matching the router's pool size.
package gridstream
