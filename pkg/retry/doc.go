// Package retry paces repeated attempts with exponential backoff.
//
// It is used where a failing operation should be retried without spinning:
// a driver's production loop after Produce returns an error, and the client
// console while dialing a server that is not up yet.
//
// Delays grow by Multiplier from Initial up to Max, with up to Jitter
// (as a fraction) added on top:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
package retry
