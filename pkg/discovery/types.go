package discovery

import (
	"errors"
	"time"

	"github.com/armish/fireplace/pkg/action"
)

const (
	// ServiceType is the DNS-SD service type of a fireplace server.
	ServiceType = "_fireplace._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is advertised when no endpoint carries a TCP port.
	DefaultPort = 5555

	// DefaultInstance prefixes generated instance names.
	DefaultInstance = "fireplace"
)

// TXT record keys.
const (
	TXTKeyInbound      = "ie"
	TXTKeyOutbound     = "oe"
	TXTKeyModule       = "mod"
	TXTKeyUnit         = "unit"
	TXTKeyCapabilities = "act"
)

const (
	// BrowseTimeout is the default duration of a browse.
	BrowseTimeout = 3 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidTXT          = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertising      = errors.New("not advertising")
)

// Info describes an advertised server.
type Info struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the SRV port. Zero derives it from the endpoints.
	Port int

	IEndpoint string
	OEndpoint string

	Module string
	Unit   string

	Capabilities action.Mask
}

// Service is a server found while browsing.
type Service struct {
	Info

	Host      string
	Addresses []string
}
