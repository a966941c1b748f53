// Package discovery advertises and finds fireplace servers with mDNS/DNS-SD.
//
// A server registers one instance of the _fireplace._tcp service. Its TXT
// records describe how to reach it and what it serves:
//
//	ie=tcp://10.0.0.5:5555   inbound endpoint (requests and pushes)
//	oe=tcp://10.0.0.5:5556   outbound endpoint (produced data)
//	mod=switches             loaded module
//	unit=circulator_switch   loaded unit
//	act=push,request         capabilities of the loaded unit
//
// Endpoints that bind a wildcard address are advertised as is; clients
// substitute a discovered address for the host part with ResolveEndpoint.
package discovery
