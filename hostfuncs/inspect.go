package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// InvalidIPText is returned by InspectIP for input that is not an address.
const InvalidIPText = "Error: Invalid IP address format"

var errZonedAddress = errors.New("zoned addresses are not accepted")

// IPClass describes one parsed address.
type IPClass struct {
	Addr      netip.Addr `json:"addr"`
	Loopback  bool       `json:"loopback"`
	Multicast bool       `json:"multicast"`
	// Private is only meaningful for IPv4.
	Private bool `json:"private"`
}

// IsV4 reports whether the address was written as dotted-quad IPv4.
// IPv4-mapped IPv6 addresses are IPv6.
func (c IPClass) IsV4() bool {
	return c.Addr.Is4()
}

// String renders the classification line.
func (c IPClass) String() string {
	if c.IsV4() {
		return fmt.Sprintf("[IPv4] Loopback: %s, Multicast: %s, Private: %s",
			yesNo(c.Loopback), yesNo(c.Multicast), yesNo(c.Private))
	}
	return fmt.Sprintf("[IPv6] Loopback: %s, Multicast: %s", yesNo(c.Loopback), yesNo(c.Multicast))
}

// ClassifyIP parses text after trimming surrounding whitespace.
//
// IPv6 rules are applied to every IPv6 address including IPv4-mapped ones:
// only ::1 is loopback and only ff00::/8 is multicast.
func ClassifyIP(text string) (IPClass, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(text))
	if err != nil {
		return IPClass{}, fmt.Errorf("parse address: %w", err)
	}
	if addr.Zone() != "" {
		return IPClass{}, errZonedAddress
	}

	if addr.Is4() {
		return IPClass{
			Addr:      addr,
			Loopback:  addr.IsLoopback(),
			Multicast: addr.IsMulticast(),
			Private:   addr.IsPrivate(),
		}, nil
	}

	return IPClass{
		Addr:      addr,
		Loopback:  addr == netip.IPv6Loopback(),
		Multicast: addr.As16()[0] == 0xff,
	}, nil
}

// InspectIP returns the classification line for text, or InvalidIPText.
func InspectIP(text string) string {
	class, err := ClassifyIP(text)
	if err != nil {
		return InvalidIPText
	}
	return class.String()
}

// InspectIPHandler adapts InspectIP to the registry's text handler shape.
func InspectIPHandler(_ context.Context, text string) string {
	return InspectIP(text)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
