// Package middleware implements the network-facing server that bridges a
// client to the loaded processing unit.
//
// The server registers itself as the module manager's listener. Each time a
// unit finishes loading, Notify stops the running workers and starts the ones
// the unit's capabilities call for:
//
//   - a sync worker on the inbound endpoint when the unit serves REQUEST or
//     PUSH. It decodes one JSON envelope at a time, dispatches it and sends
//     back {"result": ..., "error": bool}.
//   - an async worker on the outbound endpoint when the unit serves REPLY or
//     WAIT. It waits for the module queue to reach its threshold, flushes
//     anyway after a number of consecutive timeouts, and sends every item
//     payload as one message, in push order.
//
// Notify returns only after every started worker has bound its endpoint.
//
// Per-request failures become error responses. Transport failures on a
// worker socket are fatal and reported through Config.OnFatal, which exits
// the process by default.
package middleware
