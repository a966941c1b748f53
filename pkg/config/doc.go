// Package config loads the fireplace server configuration.
//
// A configuration is read from a YAML file over built-in defaults and then
// overridden by command line flags:
//
//	server:
//	  iendpoint: tcp://0.0.0.0:5555
//	  oendpoint: tcp://0.0.0.0:5556
//	  threshold: 100
//	module:
//	  name: switches
//	unit:
//	  name: circulator_switch
//	  params: "-p 4"
//	log:
//	  level: debug
//
// Module and unit parameter strings are tokenized with SplitParams and
// parsed with a flag.FlagSet by ParseParams, so drivers declare their
// parameters the same way commands declare flags.
package config
