package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/transport"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info. Empty endpoints are omitted.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyModule] = info.Module
	txt[TXTKeyUnit] = info.Unit
	txt[TXTKeyCapabilities] = info.Capabilities.String()

	if info.IEndpoint != "" {
		txt[TXTKeyInbound] = info.IEndpoint
	}
	if info.OEndpoint != "" {
		txt[TXTKeyOutbound] = info.OEndpoint
	}

	return txt
}

// DecodeTXT parses TXT records of a fireplace server.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	info := &Info{}
	var ok bool

	info.Module, ok = txt[TXTKeyModule]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyModule)
	}
	info.Unit, ok = txt[TXTKeyUnit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyUnit)
	}

	acts, ok := txt[TXTKeyCapabilities]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyCapabilities)
	}
	caps, err := action.ParseMask(acts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXT, TXTKeyCapabilities, err)
	}
	info.Capabilities = caps

	info.IEndpoint = txt[TXTKeyInbound]
	info.OEndpoint = txt[TXTKeyOutbound]
	if info.IEndpoint == "" && info.OEndpoint == "" {
		return nil, fmt.Errorf("%w: %s or %s", ErrMissingRequired, TXTKeyInbound, TXTKeyOutbound)
	}
	for _, ep := range []string{info.IEndpoint, info.OEndpoint} {
		if ep == "" {
			continue
		}
		if _, _, err := transport.ParseEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXT, err)
		}
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// AdvertisedPort returns info.Port, or the port of the first TCP endpoint,
// or DefaultPort.
func AdvertisedPort(info *Info) int {
	if info.Port > 0 {
		return info.Port
	}
	for _, ep := range []string{info.IEndpoint, info.OEndpoint} {
		scheme, addr, err := transport.ParseEndpoint(ep)
		if err != nil || scheme != transport.SchemeTCP {
			continue
		}
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			return p
		}
	}
	return DefaultPort
}

// ResolveEndpoint replaces a wildcard or empty host in a TCP endpoint with
// addr. Other endpoints are returned unchanged.
func ResolveEndpoint(endpoint, addr string) string {
	scheme, hostport, err := transport.ParseEndpoint(endpoint)
	if err != nil || scheme != transport.SchemeTCP || addr == "" {
		return endpoint
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return endpoint
	}
	switch host {
	case "", "0.0.0.0", "::", "*":
		return scheme + "://" + net.JoinHostPort(addr, port)
	}
	return endpoint
}
