package hostfuncs

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"
)

// NetfilterResult is the verdict for one outbound address.
type NetfilterResult struct {
	Reason string `json:"reason,omitempty"`

	// ResolvedIP is the address a connection should be pinned to.
	ResolvedIP string `json:"resolved_ip,omitempty"`

	Allowed bool `json:"allowed"`
}

// NetfilterOption configures ValidateAddress.
type NetfilterOption func(*netfilterConfig)

// Resolver is the subset of *net.Resolver used for host lookups.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type netfilterConfig struct {
	resolver       Resolver
	allowlist      []string
	blocklist      []string
	allowedPorts   []int
	blockedPorts   []int
	resolveTimeout time.Duration
	blockPrivate   bool
	blockLocalhost bool
	blockLinkLocal bool
	blockMulticast bool
	resolveDNS     bool
}

func defaultNetfilterConfig() netfilterConfig {
	return netfilterConfig{
		resolver:       net.DefaultResolver,
		resolveTimeout: 5 * time.Second,
		blockPrivate:   true,
		blockLocalhost: true,
		blockLinkLocal: true,
		blockMulticast: true,
		resolveDNS:     true,
	}
}

// WithAllowlist sets hosts, wildcard domains or CIDRs that bypass the other checks.
func WithAllowlist(addresses ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowlist = addresses
	}
}

// WithBlocklist sets hosts, wildcard domains or CIDRs that are always refused.
func WithBlocklist(addresses ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blocklist = addresses
	}
}

// WithBlockPrivate toggles blocking of RFC 1918 and ULA addresses.
func WithBlockPrivate(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockPrivate = block
	}
}

// WithBlockLocalhost toggles blocking of loopback addresses.
func WithBlockLocalhost(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLocalhost = block
	}
}

// WithBlockLinkLocal toggles blocking of link-local addresses.
func WithBlockLinkLocal(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLinkLocal = block
	}
}

// WithBlockMulticast toggles blocking of multicast addresses.
func WithBlockMulticast(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockMulticast = block
	}
}

// WithResolveDNS toggles hostname resolution before the IP checks.
func WithResolveDNS(resolve bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.resolveDNS = resolve
	}
}

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) NetfilterOption {
	return func(c *netfilterConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithAllowedPorts restricts connections to the given ports.
func WithAllowedPorts(ports ...int) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowedPorts = ports
	}
}

// WithBlockedPorts refuses the given ports.
func WithBlockedPorts(ports ...int) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockedPorts = ports
	}
}

// ValidateAddress reports whether address ("host", "host:port" or a bare
// IPv6 literal) may be used as an outbound target.
func ValidateAddress(address string, opts ...NetfilterOption) NetfilterResult {
	return ValidateAddressContext(context.Background(), address, opts...)
}

// ValidateAddressContext is ValidateAddress with a caller-supplied context
// bounding DNS resolution.
func ValidateAddressContext(ctx context.Context, address string, opts ...NetfilterOption) NetfilterResult {
	cfg := defaultNetfilterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	host, port, err := parseAddress(address)
	if err != nil {
		return NetfilterResult{Reason: "invalid address format: " + err.Error()}
	}

	if reason := checkPort(port, cfg); reason != "" {
		return NetfilterResult{Reason: reason}
	}

	if slices.ContainsFunc(cfg.allowlist, func(p string) bool { return matchesPattern(host, p) }) {
		return NetfilterResult{Allowed: true}
	}
	if slices.ContainsFunc(cfg.blocklist, func(p string) bool { return matchesPattern(host, p) }) {
		return NetfilterResult{Reason: "address in blocklist"}
	}

	addr, ok, reason := resolveHost(ctx, host, cfg)
	if reason != "" {
		return NetfilterResult{Reason: reason}
	}
	if !ok {
		// hostname-only mode
		return NetfilterResult{Allowed: true}
	}
	return validateIP(addr, cfg)
}

func checkPort(port int, cfg netfilterConfig) string {
	if port > 0 && len(cfg.allowedPorts) > 0 && !slices.Contains(cfg.allowedPorts, port) {
		return "port not in allowlist"
	}
	if slices.Contains(cfg.blockedPorts, port) {
		return "port is blocked"
	}
	return ""
}

// resolveHost returns the address to check. ok is false when the host is a
// name and resolution is disabled.
func resolveHost(ctx context.Context, host string, cfg netfilterConfig) (addr netip.Addr, ok bool, reason string) {
	if literal, err := netip.ParseAddr(host); err == nil {
		return literal.WithZone("").Unmap(), true, ""
	}
	if !cfg.resolveDNS {
		return netip.Addr{}, false, ""
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.resolveTimeout)
	defer cancel()

	addrs, err := cfg.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, false, "DNS resolution failed: " + err.Error()
	}
	if len(addrs) == 0 {
		return netip.Addr{}, false, "DNS resolution returned no addresses"
	}
	return addrs[0].Unmap(), true, ""
}

func validateIP(addr netip.Addr, cfg netfilterConfig) NetfilterResult {
	for _, blocked := range cfg.blocklist {
		if prefix, err := netip.ParsePrefix(blocked); err == nil && prefix.Contains(addr) {
			return NetfilterResult{Reason: "IP in blocklist CIDR"}
		}
	}

	if reason := securityRestriction(addr, cfg); reason != "" {
		return NetfilterResult{Reason: reason}
	}

	return NetfilterResult{Allowed: true, ResolvedIP: addr.String()}
}

func securityRestriction(addr netip.Addr, cfg netfilterConfig) string {
	switch {
	case cfg.blockLocalhost && addr.IsLoopback():
		return "localhost/loopback addresses blocked"
	case cfg.blockPrivate && addr.IsPrivate():
		return "private addresses blocked (RFC 1918)"
	case cfg.blockLinkLocal && (addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()):
		return "link-local addresses blocked"
	case cfg.blockMulticast && addr.IsMulticast():
		return "multicast addresses blocked"
	case addr.IsUnspecified():
		return "unspecified address blocked"
	}
	return ""
}

func parseAddress(address string) (host string, port int, err error) {
	if !strings.Contains(address, ":") {
		return address, 0, nil
	}

	h, p, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		// bare IPv6 literal
		if strings.Count(address, ":") > 1 {
			return strings.Trim(address, "[]"), 0, nil
		}
		return "", 0, splitErr
	}

	if p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 0 || port > 65535 {
			return "", 0, &net.AddrError{Err: "invalid port", Addr: address}
		}
	}
	return h, port, nil
}

// matchesPattern matches host against an exact name, a "*.domain" wildcard or a CIDR.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if prefix, err := netip.ParsePrefix(pattern); err == nil {
			return prefix.Contains(addr.WithZone("").Unmap())
		}
	}
	return false
}
