// Package activities adapts the infrastructure ports into the named, JSON
// friendly operations the lifecycle coordinator runs through the workflow
// engine.
//
// Every activity is safe to retry:
//   - calculateRoute and currentTime have no side effects
//   - createDelivery is an upsert that returns the stored record
//   - updateLocation and updateStatus overwrite a fixed set of fields
//   - sendNotification de-duplicates on an idempotency key derived from the
//     recipient and the delivery id
//
// composeDelayMessage never fails: when the composer is missing or errors
// out, a canned message is used instead.
package activities
