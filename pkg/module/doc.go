// Package module hosts processing units (drivers) and manages their
// lifecycle.
//
// A Module is created by a named Factory from a Registry and declares the
// kinds of actions its units may support. At most one Unit is loaded per
// module. A unit that declares REPLY or WAIT gets a production goroutine
// that calls Produce into the module's batching queue until the unit is
// unloaded; unloading waits for that goroutine to exit.
//
// The Manager owns at most one loaded module and notifies a Listener after
// every successful unit load, which is how the network layer learns which
// workers to run:
//
//	mgr := module.NewManager(registry, module.Options{Logger: logger})
//	mgr.SetListener(server.Notify)
//	if err := mgr.LoadModule("loopback", ""); err != nil { ... }
//	if err := mgr.LoadUnit("echo", ""); err != nil { ... }
//
// Capabilities: a unit may implement Capable to narrow the module's mask.
// The narrowed mask must be a subset of the module's, otherwise LoadUnit
// fails with ErrCapabilityMismatch. Units that do not implement Capable
// take the module's mask.
package module
