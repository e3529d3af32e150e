// Package rendezvous coordinates a BLE node that is central toward two fixed
// sensor peripherals and peripheral toward a companion phone.
//
// The package owns the whole orchestration state in a single Node:
//   - Target registry: the two hardware addresses the node must reach
//   - Scan-and-connect: advertisement filtering, connect requests, role resolution
//   - Discovery: service -> characteristic walk and notification subscription
//   - Relay: rendering sensor notifications into the shared aggregate value
//   - Phase control: Connecting -> Discovering -> Operational, reset on target loss
//
// The Bluetooth host stack is an external collaborator (see HostStack). It
// reports everything that happens as Event values, which the Node consumes one
// at a time on its own goroutine (Run) or synchronously (Handle).
package rendezvous
