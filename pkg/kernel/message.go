// Package kernel models rtnetlink link, address and neighbor messages and
// decodes the attributes the interface bridge needs from them.
package kernel

import (
	"fmt"
	"syscall"

	"github.com/newtron-network/ifbridge/pkg/util"
	"golang.org/x/sys/unix"
)

// Attr is one raw routing attribute, kept in kernel order.
type Attr struct {
	Type  uint16
	Value []byte
}

// LinkMessage is an RTM_NEWLINK/RTM_DELLINK payload.
type LinkMessage struct {
	Index int32
	Flags uint32
	Attrs []Attr
}

// Up reports whether the IFF_UP flag is set (administrative state).
func (m LinkMessage) Up() bool {
	return m.Flags&unix.IFF_UP != 0
}

// AddressMessage is an RTM_NEWADDR payload.
type AddressMessage struct {
	Family    uint8
	PrefixLen uint8
	Index     uint32
	Attrs     []Attr
}

// NeighborMessage is an RTM_NEWNEIGH payload.
type NeighborMessage struct {
	Family uint8
	Index  int32
	State  uint16
	Type   uint8
	Attrs  []Attr
}

// Event is one message received on the link multicast group. A non-nil Err
// is the last event delivered before the stream closes.
type Event struct {
	Type uint16
	Link LinkMessage
	Err  error
}

// NewLink reports whether the event is a new or updated link.
func (e Event) NewLink() bool {
	return e.Err == nil && e.Type == unix.RTM_NEWLINK
}

// TransportError wraps a failed netlink request or receive.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("netlink %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{util.ErrTransport, e.Err}
}

func routeAttrs(in []syscall.NetlinkRouteAttr) []Attr {
	out := make([]Attr, 0, len(in))
	for _, a := range in {
		out = append(out, Attr{Type: a.Attr.Type, Value: a.Value})
	}
	return out
}
