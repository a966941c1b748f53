// Package buffer provides the batching queue that decouples a driver's
// asynchronous producer from the server's network egress.
//
// Items are released in bulk: the consumer waits until a threshold of new
// items has accumulated, bounded by a timeout, and then drains the queue in
// one call. Callers combine the bounded wait with a maximum number of
// consecutive timeouts before a forced flush, so data is never held back
// indefinitely.
package buffer
