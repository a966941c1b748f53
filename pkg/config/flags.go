package config

import (
	"flag"
)

// Flags binds the server command line to a Config. Flags that are set on
// the command line override values from the configuration file.
type Flags struct {
	fs *flag.FlagSet

	File string

	values Config
}

// flagBinding applies one command line value to a Config.
type flagBinding func(dst, src *Config)

var bindings = map[string]flagBinding{
	"iendpoint":    func(d, s *Config) { d.Server.IEndpoint = s.Server.IEndpoint },
	"i":            func(d, s *Config) { d.Server.IEndpoint = s.Server.IEndpoint },
	"oendpoint":    func(d, s *Config) { d.Server.OEndpoint = s.Server.OEndpoint },
	"o":            func(d, s *Config) { d.Server.OEndpoint = s.Server.OEndpoint },
	"mname":        func(d, s *Config) { d.Module.Name = s.Module.Name },
	"m":            func(d, s *Config) { d.Module.Name = s.Module.Name },
	"mparam":       func(d, s *Config) { d.Module.Params = s.Module.Params },
	"n":            func(d, s *Config) { d.Module.Params = s.Module.Params },
	"puname":       func(d, s *Config) { d.Unit.Name = s.Unit.Name },
	"t":            func(d, s *Config) { d.Unit.Name = s.Unit.Name },
	"puparam":      func(d, s *Config) { d.Unit.Params = s.Unit.Params },
	"u":            func(d, s *Config) { d.Unit.Params = s.Unit.Params },
	"log-level":    func(d, s *Config) { d.Log.Level = s.Log.Level },
	"log-format":   func(d, s *Config) { d.Log.Format = s.Log.Format },
	"protocol-log": func(d, s *Config) { d.Log.Protocol = s.Log.Protocol },
	"metrics-addr": func(d, s *Config) { d.Metrics.Addr = s.Metrics.Addr },
	"advertise":    func(d, s *Config) { d.Discovery.Advertise = s.Discovery.Advertise },
	"threshold":    func(d, s *Config) { d.Server.Threshold = s.Server.Threshold },
}

// NewFlags registers the server flags on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: Default()}
	v := &f.values

	fs.StringVar(&f.File, "config", "", "Configuration file path (YAML)")

	fs.StringVar(&v.Server.IEndpoint, "iendpoint", "", "Inbound endpoint for requests and pushes, e.g. tcp://0.0.0.0:5555")
	fs.StringVar(&v.Server.IEndpoint, "i", "", "Shorthand for -iendpoint")
	fs.StringVar(&v.Server.OEndpoint, "oendpoint", "", "Outbound endpoint for produced data, e.g. tcp://0.0.0.0:5556")
	fs.StringVar(&v.Server.OEndpoint, "o", "", "Shorthand for -oendpoint")

	fs.StringVar(&v.Module.Name, "mname", "", "Module name")
	fs.StringVar(&v.Module.Name, "m", "", "Shorthand for -mname")
	fs.StringVar(&v.Module.Params, "mparam", "", "Module parameter string")
	fs.StringVar(&v.Module.Params, "n", "", "Shorthand for -mparam")
	fs.StringVar(&v.Unit.Name, "puname", "", "Processing unit name")
	fs.StringVar(&v.Unit.Name, "t", "", "Shorthand for -puname")
	fs.StringVar(&v.Unit.Params, "puparam", "", "Processing unit parameter string")
	fs.StringVar(&v.Unit.Params, "u", "", "Shorthand for -puparam")

	fs.IntVar(&v.Server.Threshold, "threshold", DefaultThreshold, "Queued items that release a batch")

	fs.StringVar(&v.Log.Level, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&v.Log.Format, "log-format", "text", "Log format: text, json")
	fs.StringVar(&v.Log.Protocol, "protocol-log", "", "Protocol capture file (CBOR)")
	fs.StringVar(&v.Metrics.Addr, "metrics-addr", "", "Prometheus listen address, e.g. :9090")
	fs.BoolVar(&v.Discovery.Advertise, "advertise", false, "Advertise the server via mDNS")

	return f
}

// Resolve loads the configuration file (if any), applies the flags that were
// set and validates the result. Call it after fs.Parse.
func (f *Flags) Resolve() (Config, error) {
	cfg := Default()
	if f.File != "" {
		loaded, err := Load(f.File)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	f.fs.Visit(func(fl *flag.Flag) {
		if bind, ok := bindings[fl.Name]; ok {
			bind(&cfg, &f.values)
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
