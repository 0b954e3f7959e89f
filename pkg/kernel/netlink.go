package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// sizeofNdmsg is the length of struct ndmsg on the wire.
const sizeofNdmsg = 12

// Netlink issues rtnetlink requests and subscriptions, optionally inside a
// network namespace other than the caller's.
type Netlink struct {
	ns netns.NsHandle

	// mu serializes requests on the shared namespaced socket. Requests in
	// the current namespace open a socket per call and do not need it.
	mu      sync.Mutex
	sockets map[int]*nl.SocketHandle
}

// NewNetlink opens a transport. An empty namespace selects the caller's own
// namespace; a value containing '/' is a path, anything else a name under
// /var/run/netns.
func NewNetlink(namespace string) (*Netlink, error) {
	if namespace == "" {
		return &Netlink{ns: netns.None()}, nil
	}

	var ns netns.NsHandle
	var err error
	if strings.ContainsRune(namespace, '/') {
		ns, err = netns.GetFromPath(namespace)
	} else {
		ns, err = netns.GetFromName(namespace)
	}
	if err != nil {
		return nil, &TransportError{Op: "open namespace " + namespace, Err: err}
	}

	sock, err := nl.GetNetlinkSocketAt(ns, netns.None(), unix.NETLINK_ROUTE)
	if err != nil {
		ns.Close()
		return nil, &TransportError{Op: "open socket in " + namespace, Err: err}
	}

	util.WithField("netns", namespace).Info("Netlink transport bound to namespace")
	return &Netlink{
		ns:      ns,
		sockets: map[int]*nl.SocketHandle{unix.NETLINK_ROUTE: {Socket: sock}},
	}, nil
}

// Close releases the namespaced socket and handle, if any.
func (n *Netlink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, h := range n.sockets {
		h.Socket.Close()
	}
	n.sockets = nil
	if n.ns.IsOpen() {
		return n.ns.Close()
	}
	return nil
}

func (n *Netlink) newRequest(proto, flags int) *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(proto, flags)
	if n.sockets != nil {
		req.Sockets = n.sockets
	}
	return req
}

func (n *Netlink) execute(op string, req *nl.NetlinkRequest, resType uint16) ([][]byte, error) {
	if n.sockets != nil {
		n.mu.Lock()
		defer n.mu.Unlock()
	}
	msgs, err := req.Execute(unix.NETLINK_ROUTE, resType)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return msgs, nil
}

// dump runs a dump request built by newReq. A dump the kernel marks as
// interrupted by a concurrent change is retried once.
func (n *Netlink) dump(op string, newReq func() *nl.NetlinkRequest, resType uint16) ([][]byte, error) {
	return retryInterrupted(func() ([][]byte, error) {
		return n.execute(op, newReq(), resType)
	})
}

func retryInterrupted(run func() ([][]byte, error)) ([][]byte, error) {
	msgs, err := run()
	if errors.Is(err, nl.ErrDumpInterrupted) {
		util.Logger.Debug("Netlink dump interrupted, retrying")
		msgs, err = run()
	}
	return msgs, err
}

// ListLinks dumps every link in kernel order.
func (n *Netlink) ListLinks() ([]LinkMessage, error) {
	msgs, err := n.dump("list links", func() *nl.NetlinkRequest {
		req := n.newRequest(unix.RTM_GETLINK, unix.NLM_F_DUMP)
		req.AddData(nl.NewIfInfomsg(unix.AF_UNSPEC))
		return req
	}, unix.RTM_NEWLINK)
	if err != nil {
		return nil, err
	}

	links := make([]LinkMessage, 0, len(msgs))
	for _, m := range msgs {
		link, err := parseLink(m)
		if err != nil {
			return nil, &TransportError{Op: "list links", Err: err}
		}
		links = append(links, link)
	}
	return links, nil
}

// GetLinkByName looks up a single link. It returns nil without error when the
// kernel reports no such device.
func (n *Netlink) GetLinkByName(name string) (*LinkMessage, error) {
	req := n.newRequest(unix.RTM_GETLINK, unix.NLM_F_ACK)
	req.AddData(nl.NewIfInfomsg(unix.AF_UNSPEC))
	req.AddData(nl.NewRtAttr(unix.IFLA_IFNAME, nl.ZeroTerminated(name)))

	msgs, err := n.execute("get link "+name, req, unix.RTM_NEWLINK)
	if err != nil {
		if errors.Is(err, unix.ENODEV) {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	link, err := parseLink(msgs[0])
	if err != nil {
		return nil, &TransportError{Op: "get link " + name, Err: err}
	}
	return &link, nil
}

// SetLinkState sets or clears IFF_UP on the link with the given index.
func (n *Netlink) SetLinkState(index int32, up bool) error {
	req := n.newRequest(unix.RTM_NEWLINK, unix.NLM_F_ACK)
	msg := nl.NewIfInfomsg(unix.AF_UNSPEC)
	msg.Index = index
	msg.Change = unix.IFF_UP
	if up {
		msg.Flags = unix.IFF_UP
	}
	req.AddData(msg)

	_, err := n.execute(fmt.Sprintf("set link %d up=%v", index, up), req, 0)
	return err
}

// ListAddresses dumps the IPv4 addresses assigned to the link with the given
// index, in kernel order.
func (n *Netlink) ListAddresses(index int32) ([]AddressMessage, error) {
	msgs, err := n.dump("list addresses", func() *nl.NetlinkRequest {
		req := n.newRequest(unix.RTM_GETADDR, unix.NLM_F_DUMP)
		req.AddData(nl.NewIfAddrmsg(unix.AF_INET))
		return req
	}, unix.RTM_NEWADDR)
	if err != nil {
		return nil, err
	}

	var addrs []AddressMessage
	for _, m := range msgs {
		addr, err := parseAddress(m)
		if err != nil {
			return nil, &TransportError{Op: "list addresses", Err: err}
		}
		if addr.Family != unix.AF_INET || int32(addr.Index) != index {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// ListNeighbors dumps the neighbor table for one address family.
func (n *Netlink) ListNeighbors(family int) ([]NeighborMessage, error) {
	msgs, err := n.dump("list neighbors", func() *nl.NetlinkRequest {
		req := n.newRequest(unix.RTM_GETNEIGH, unix.NLM_F_DUMP)
		req.AddData(&netlink.Ndmsg{Family: uint8(family)})
		return req
	}, unix.RTM_NEWNEIGH)
	if err != nil {
		return nil, err
	}

	neighs := make([]NeighborMessage, 0, len(msgs))
	for _, m := range msgs {
		neigh, err := parseNeighbor(m)
		if err != nil {
			return nil, &TransportError{Op: "list neighbors", Err: err}
		}
		if int(neigh.Family) != family {
			continue
		}
		neighs = append(neighs, neigh)
	}
	return neighs, nil
}

// Subscribe joins the link multicast group and delivers link messages in
// arrival order. The channel closes after ctx is cancelled or after an event
// carrying Err.
func (n *Netlink) Subscribe(ctx context.Context) (<-chan Event, error) {
	sock, err := nl.SubscribeAt(n.ns, netns.None(), unix.NETLINK_ROUTE, unix.RTNLGRP_LINK)
	if err != nil {
		return nil, &TransportError{Op: "subscribe link group", Err: err}
	}
	// Close wakes a blocked Receive. The timeout surfaces as EAGAIN and only
	// bounds how long the loop goes between checks of done.
	if err := sock.SetReceiveTimeout(&unix.Timeval{Sec: 1}); err != nil {
		sock.Close()
		return nil, &TransportError{Op: "set receive timeout", Err: err}
	}

	events := make(chan Event)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done); sock.Close() }) }

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer stop()

		for {
			msgs, from, err := sock.Receive()
			select {
			case <-done:
				return
			default:
			}
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				send(ctx, events, Event{Err: &TransportError{Op: "receive", Err: err}})
				return
			}
			if from != nil && from.Pid != nl.PidKernel {
				continue
			}
			for _, m := range msgs {
				ev, ok := linkEvent(m)
				if !ok {
					continue
				}
				if !send(ctx, events, ev) {
					return
				}
				if ev.Err != nil {
					return
				}
			}
		}
	}()

	return events, nil
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func linkEvent(m syscall.NetlinkMessage) (Event, bool) {
	switch m.Header.Type {
	case unix.RTM_NEWLINK, unix.RTM_DELLINK:
	default:
		return Event{}, false
	}
	link, err := parseLink(m.Data)
	if err != nil {
		return Event{Type: m.Header.Type, Err: &TransportError{Op: "receive", Err: err}}, true
	}
	return Event{Type: m.Header.Type, Link: link}, true
}

func parseLink(b []byte) (LinkMessage, error) {
	if len(b) < unix.SizeofIfInfomsg {
		return LinkMessage{}, fmt.Errorf("short ifinfomsg (%d bytes): %w", len(b), util.ErrDecode)
	}
	msg := nl.DeserializeIfInfomsg(b)
	attrs, err := nl.ParseRouteAttr(b[unix.SizeofIfInfomsg:])
	if err != nil {
		return LinkMessage{}, err
	}
	return LinkMessage{Index: msg.Index, Flags: msg.Flags, Attrs: routeAttrs(attrs)}, nil
}

func parseAddress(b []byte) (AddressMessage, error) {
	if len(b) < unix.SizeofIfAddrmsg {
		return AddressMessage{}, fmt.Errorf("short ifaddrmsg (%d bytes): %w", len(b), util.ErrDecode)
	}
	msg := nl.DeserializeIfAddrmsg(b)
	attrs, err := nl.ParseRouteAttr(b[msg.Len():])
	if err != nil {
		return AddressMessage{}, err
	}
	return AddressMessage{
		Family:    msg.Family,
		PrefixLen: msg.Prefixlen,
		Index:     msg.Index,
		Attrs:     routeAttrs(attrs),
	}, nil
}

// parseNeighbor reads struct ndmsg by hand: family, 3 pad bytes, ifindex,
// state, flags, type.
func parseNeighbor(b []byte) (NeighborMessage, error) {
	if len(b) < sizeofNdmsg {
		return NeighborMessage{}, fmt.Errorf("short ndmsg (%d bytes): %w", len(b), util.ErrDecode)
	}
	native := nl.NativeEndian()
	attrs, err := nl.ParseRouteAttr(b[sizeofNdmsg:])
	if err != nil {
		return NeighborMessage{}, err
	}
	return NeighborMessage{
		Family: b[0],
		Index:  int32(native.Uint32(b[4:8])),
		State:  native.Uint16(b[8:10]),
		Type:   b[11],
		Attrs:  routeAttrs(attrs),
	}, nil
}
