// Package delivery contains the Delivery aggregate and its Status.
//
// A Delivery is a single freight shipment travelling from an origin to a
// destination. It records the ETA promised at creation (the baseline), the
// latest route duration computed from the reported location, and whether
// the recipient has already been told about a delay.
//
// # Lifecycle
//
//	ON_ROUTE ──notify delay──▶ DELAYED
//	    │                         │
//	    └──────arrive/mark────────┴──▶ DELIVERED (terminal)
//
// # Invariants
//
//   - originalEtaEpochSecs is set once by NewDelivery and never changes
//   - notified flips from false to true at most once, and never after DELIVERED
//   - DELIVERED accepts no further transitions
//
// The aggregate is a plain in-memory value. The lifecycle coordinator keeps
// one as its mirror of the persisted record and only mutates it after the
// corresponding write has been acknowledged.
package delivery
