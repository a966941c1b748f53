package discovery

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Timeout bounds a Browse call.
	// Default: BrowseTimeout.
	Timeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Timeout: BrowseTimeout}
}

// MDNSBrowser finds fireplace servers using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// Browse collects servers until the timeout elapses or ctx is done.
// Entries for the same instance from several interfaces are merged.
// Services with unusable TXT records are skipped.
func (b *MDNSBrowser) Browse(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	found := newServiceSet()
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			found.add(entryToService(entry))

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			found.remove(entry.Instance, entryAddresses(entry))

		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return nil, err
			}
			errCh = nil

		case <-ctx.Done():
			return found.list(), nil
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

func entryToService(entry *zeroconf.ServiceEntry) *Service {
	return newService(entry.Instance, entry.HostName, entry.Port, entry.Text, entryAddresses(entry))
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// newService builds a Service from the parts of a DNS-SD answer. It returns
// nil when the TXT records do not describe a fireplace server.
func newService(instance, host string, port int, text, addrs []string) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil
	}
	info.Instance = instance
	info.Port = port
	return &Service{
		Info:      *info,
		Host:      host,
		Addresses: append([]string(nil), addrs...),
	}
}

// InboundEndpoint returns the inbound endpoint with a wildcard host replaced
// by the first discovered address.
func (s *Service) InboundEndpoint() string {
	return ResolveEndpoint(s.IEndpoint, s.firstAddress())
}

// OutboundEndpoint returns the outbound endpoint with a wildcard host
// replaced by the first discovered address.
func (s *Service) OutboundEndpoint() string {
	return ResolveEndpoint(s.OEndpoint, s.firstAddress())
}

func (s *Service) firstAddress() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	return s.Addresses[0]
}

// serviceSet aggregates browse results by instance name.
type serviceSet struct {
	byName map[string]*Service
}

func newServiceSet() *serviceSet {
	return &serviceSet{byName: make(map[string]*Service)}
}

func (s *serviceSet) add(svc *Service) {
	if svc == nil {
		return
	}
	if existing, ok := s.byName[svc.Instance]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return
	}
	s.byName[svc.Instance] = svc
}

func (s *serviceSet) remove(instance string, addrs []string) {
	existing, ok := s.byName[instance]
	if !ok {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, addrs)
	if len(existing.Addresses) == 0 {
		delete(s.byName, instance)
	}
}

func (s *serviceSet) list() []*Service {
	out := make([]*Service, 0, len(s.byName))
	for _, svc := range s.byName {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, drop []string) []string {
	toRemove := make(map[string]bool, len(drop))
	for _, addr := range drop {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
