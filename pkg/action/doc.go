// Package action defines the capability model shared by drivers and the
// middleware server.
//
// A driver declares the kinds of operations it supports as a Mask built
// from four Actions:
//
//	PUSH    = 1  fire-and-forget command, acknowledged with a boolean
//	WAIT    = 2  driver emits data the client waits for
//	REQUEST = 4  synchronous call returning a result
//	REPLY   = 8  driver sends asynchronous replies
//
// The server starts its synchronous worker when a mask contains REQUEST or
// PUSH, and its asynchronous worker when it contains REPLY or WAIT.
package action
