package kernel

import (
	"fmt"
	"net"
	"strings"

	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// mtuUnset is reported by some drivers for interfaces without a configured MTU.
const mtuUnset = 65536

// OperStatus is the operational state exposed to the management tree.
type OperStatus int

const (
	OperDown OperStatus = iota
	OperUp
	OperDormant
)

func (s OperStatus) String() string {
	switch s {
	case OperUp:
		return "UP"
	case OperDormant:
		return "DORMANT"
	}
	return "DOWN"
}

// operStatusFromKernel maps an RFC 2863 IFLA_OPERSTATE value. Only up and
// dormant are distinguished; every other state is reported as down.
func operStatusFromKernel(v uint8) OperStatus {
	switch netlink.LinkOperState(v) {
	case netlink.OperUp:
		return OperUp
	case netlink.OperDormant:
		return OperDormant
	}
	return OperDown
}

// DecodeErrorKind classifies a link decode failure
type DecodeErrorKind int

const (
	// MissingName is returned when the first attribute is not IFLA_IFNAME
	MissingName DecodeErrorKind = iota
)

// DecodeError reports a link message that cannot be translated
type DecodeError struct {
	Kind DecodeErrorKind
}

func (e *DecodeError) Error() string {
	return "decode link: first attribute is not the interface name"
}

func (e *DecodeError) Unwrap() error {
	return util.ErrDecode
}

// LinkAttrs holds the attributes decoded from one link message.
type LinkAttrs struct {
	Name         string
	OperStatus   *OperStatus
	MTU          *uint32
	HardwareAddr net.HardwareAddr
}

// DecodeLink extracts the interface name, operational state, MTU and MAC
// address from a link attribute list. The name must be the first attribute.
// Unknown attributes and values of the wrong length are ignored.
func DecodeLink(attrs []Attr) (LinkAttrs, error) {
	var out LinkAttrs
	if len(attrs) == 0 || attrs[0].Type != unix.IFLA_IFNAME {
		return out, &DecodeError{Kind: MissingName}
	}
	out.Name = strings.TrimRight(string(attrs[0].Value), "\x00")

	for _, a := range attrs[1:] {
		switch a.Type {
		case unix.IFLA_OPERSTATE:
			if len(a.Value) < 1 {
				continue
			}
			s := operStatusFromKernel(a.Value[0])
			out.OperStatus = &s
		case unix.IFLA_MTU:
			if len(a.Value) != 4 {
				continue
			}
			mtu := nl.NativeEndian().Uint32(a.Value)
			if mtu == mtuUnset {
				util.WithInterface(out.Name).Infof("mtu %d reported, treating as unset", mtu)
				continue
			}
			out.MTU = &mtu
		case unix.IFLA_ADDRESS:
			if len(a.Value) != 6 {
				continue
			}
			out.HardwareAddr = net.HardwareAddr(append([]byte(nil), a.Value...))
		}
	}
	return out, nil
}

// DecodeAddress returns the IPv4 address carried by an address message.
// IFA_LOCAL is preferred; IFA_ADDRESS is used when it is absent.
func DecodeAddress(m AddressMessage) (net.IP, bool) {
	var local, addr net.IP
	for _, a := range m.Attrs {
		if len(a.Value) != net.IPv4len {
			continue
		}
		switch a.Type {
		case unix.IFA_LOCAL:
			local = net.IP(append([]byte(nil), a.Value...))
		case unix.IFA_ADDRESS:
			addr = net.IP(append([]byte(nil), a.Value...))
		}
	}
	if local != nil {
		return local, true
	}
	return addr, addr != nil
}

// DecodeNeighbor returns the destination IPv4 address of a neighbor entry and
// its link-layer address when one of Ethernet length is present.
func DecodeNeighbor(m NeighborMessage) (net.IP, net.HardwareAddr, bool) {
	var dst net.IP
	var lladdr net.HardwareAddr
	for _, a := range m.Attrs {
		switch a.Type {
		case unix.NDA_DST:
			if len(a.Value) == net.IPv4len {
				dst = net.IP(append([]byte(nil), a.Value...))
			}
		case unix.NDA_LLADDR:
			if len(a.Value) == 6 {
				lladdr = net.HardwareAddr(append([]byte(nil), a.Value...))
			}
		}
	}
	if dst == nil {
		return nil, nil, false
	}
	return dst, lladdr, true
}

// String renders a link message for debug logging.
func (m LinkMessage) String() string {
	la, err := DecodeLink(m.Attrs)
	if err != nil {
		return fmt.Sprintf("link(index=%d, %v)", m.Index, err)
	}
	return fmt.Sprintf("link(index=%d, name=%s, up=%v)", m.Index, la.Name, m.Up())
}
