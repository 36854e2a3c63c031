package notification

import (
	"fmt"
	"net/netip"
	"strings"
)

// AllowList holds the CIDR ranges each gateway may send notifications from.
type AllowList struct {
	ranges map[string][]netip.Prefix
}

// NewAllowList parses CIDR ranges per gateway. A bare address is treated as a
// single-host range.
func NewAllowList(cidrs map[string][]string) (*AllowList, error) {
	a := &AllowList{ranges: make(map[string][]netip.Prefix, len(cidrs))}
	for gateway, list := range cidrs {
		for _, raw := range list {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			prefix, err := parsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("gateway %s: invalid allow-list entry %q: %w", gateway, raw, err)
			}
			a.ranges[gateway] = append(a.ranges[gateway], prefix)
		}
	}
	return a, nil
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Allowed reports whether the client among sourceIPs is inside one of the
// gateway's ranges. A gateway without ranges accepts nothing.
func (a *AllowList) Allowed(gateway string, sourceIPs []string) bool {
	client, ok := ClientAddr(sourceIPs)
	if !ok {
		return false
	}
	for _, p := range a.ranges[gateway] {
		if p.Contains(client) {
			return true
		}
	}
	return false
}

// ClientAddr picks the originating client from a forwarded chain: each entry may
// itself be a comma separated X-Forwarded-For value, and the left-most address
// that parses wins.
func ClientAddr(sourceIPs []string) (netip.Addr, bool) {
	for _, entry := range sourceIPs {
		for _, candidate := range strings.Split(entry, ",") {
			addr, err := netip.ParseAddr(strings.TrimSpace(candidate))
			if err == nil {
				return addr.Unmap(), true
			}
		}
	}
	return netip.Addr{}, false
}
