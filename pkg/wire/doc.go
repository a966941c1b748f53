// Package wire defines the JSON envelope exchanged with clients on the
// synchronous endpoint.
//
// A request names an action, a driver method and an ordered list of
// parameters:
//
//	{"action":"request","method":"echo","parameters":["x"]}
//
// The reply always carries a result and an error flag:
//
//	{"result":"x","error":false}
//
// Parameters are kept as raw JSON until a driver asks for one with a typed
// accessor, so a request can mix strings, numbers, booleans and arrays.
// Asynchronous egress does not use this envelope; queued item bytes are
// sent as they are.
package wire
