// Package lifecycle contains the per-delivery coordinator: a deterministic
// workflow that owns the authoritative copy of one Delivery from creation
// until it is delivered.
//
// The coordinator reacts to two signals:
//   - updateLocation: recompute the route, persist the new position, detect
//     arrival, and send at most one delay notification
//   - markDelivered: complete the delivery; a no-op once delivered
//
// Everything it learns from the outside world, including the current time,
// comes from activities, so a replay after a crash reaches the same
// decisions. After a configurable number of location updates the coordinator
// hands itself over to a fresh run with the same input; the startup sequence
// then reads the persisted record back through the createDelivery upsert.
package lifecycle
