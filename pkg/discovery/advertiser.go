package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces a fireplace server.
type Advertiser interface {
	// Advertise starts announcing info, replacing any earlier announcement.
	Advertise(ctx context.Context, info *Info) error

	// Update replaces the TXT records of the running announcement.
	Update(info *Info) error

	// Stop withdraws the announcement. It is a no-op when not advertising.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise registers the _fireplace._tcp service.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	instance := InstanceName(info)
	if err := ValidateInstanceName(instance); err != nil {
		return err
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		AdvertisedPort(info),
		TXTRecordsToStrings(EncodeTXT(info)),
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	a.server = server
	return nil
}

// Update replaces the TXT records of the running service.
func (a *MDNSAdvertiser) Update(info *Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(EncodeTXT(info)))
	return nil
}

// Stop withdraws the service.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// InstanceName returns info.Instance, or "fireplace-<host>-<module>" when it
// is empty. The result is cut to the DNS label limit.
func InstanceName(info *Info) string {
	name := info.Instance
	if name == "" {
		parts := []string{DefaultInstance}
		if host, err := os.Hostname(); err == nil && host != "" {
			parts = append(parts, strings.SplitN(host, ".", 2)[0])
		}
		if info.Module != "" {
			parts = append(parts, info.Module)
		}
		name = strings.Join(parts, "-")
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// NoopAdvertiser accepts every call and announces nothing.
type NoopAdvertiser struct{}

func (NoopAdvertiser) Advertise(context.Context, *Info) error { return nil }
func (NoopAdvertiser) Update(*Info) error                     { return nil }
func (NoopAdvertiser) Stop() error                            { return nil }

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Advertiser = NoopAdvertiser{}
)
