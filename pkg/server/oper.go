package server

import (
	"context"
	"strconv"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/newtron-network/ifbridge/pkg/xpath"
	"golang.org/x/sys/unix"
)

// Assembler builds the operational tree of the served module from kernel
// state. It implements datastore.OperHandler.
type Assembler struct {
	top            string
	addressSupport bool
	kernel         Kernel
	metrics        *Metrics
}

// OnOperData answers a pull. The requested path is ignored; the whole tree
// under the top-level container is always returned.
func (a *Assembler) OnOperData(_ context.Context, path string) (*datastore.Tree, error) {
	util.Logger.Debugf("Operational pull for %s", path)
	tree, err := a.Assemble()
	if err != nil {
		a.metrics.pull(resultError)
		return nil, err
	}
	a.metrics.pull(resultOK)
	return tree, nil
}

// Assemble enumerates kernel links, and their IPv4 addresses and neighbors
// when address support is enabled, into one tree. Transport and link decode
// failures abort the pull; malformed address or neighbor entries are skipped.
func (a *Assembler) Assemble() (*datastore.Tree, error) {
	var neighbors []kernel.NeighborMessage
	if a.addressSupport {
		var err error
		if neighbors, err = a.kernel.ListNeighbors(unix.AF_INET); err != nil {
			return nil, util.NewInternalError("list neighbors", err)
		}
	}

	links, err := a.kernel.ListLinks()
	if err != nil {
		return nil, util.NewInternalError("list links", err)
	}

	tree := datastore.NewTree()
	for _, link := range links {
		la, err := kernel.DecodeLink(link.Attrs)
		if err != nil {
			return nil, util.NewInternalError("decode link", err)
		}

		if !xpath.Quotable(la.Name) {
			util.WithInterface(la.Name).Warn("Skipping link whose name cannot be used as a list key")
			continue
		}

		prefix := a.top + xpath.Format([]xpath.Segment{{
			Name:       "interface",
			Predicates: []xpath.Predicate{{Key: "name", Value: la.Name}},
		}})

		admin := "DOWN"
		if link.Up() {
			admin = "UP"
		}
		leaves := [][2]string{{"/name", la.Name}}
		if la.OperStatus != nil {
			leaves = append(leaves, [2]string{"/state/oper-status", la.OperStatus.String()})
		}
		leaves = append(leaves, [2]string{"/state/admin-status", admin})
		if la.MTU != nil {
			leaves = append(leaves, [2]string{"/ethernet/state/mtu", strconv.FormatUint(uint64(*la.MTU), 10)})
		}
		if la.HardwareAddr != nil {
			leaves = append(leaves, [2]string{"/ethernet/state/mac-address", la.HardwareAddr.String()})
		}
		for _, l := range leaves {
			if err := tree.SetLeaf(prefix+l[0], datastore.String(l[1])); err != nil {
				return nil, util.NewInternalError("build tree", err)
			}
		}

		if !a.addressSupport {
			continue
		}
		if err := a.addAddresses(tree, prefix, link.Index, la.Name); err != nil {
			return nil, err
		}
		if err := a.addNeighbors(tree, prefix, link.Index, la.Name, neighbors); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func (a *Assembler) addAddresses(tree *datastore.Tree, prefix string, index int32, ifname string) error {
	addrs, err := a.kernel.ListAddresses(index)
	if err != nil {
		return util.NewInternalError("list addresses of "+ifname, err)
	}
	for _, addr := range addrs {
		ip, ok := kernel.DecodeAddress(addr)
		if !ok {
			util.WithInterface(ifname).Warn("Skipping address entry without an IPv4 address")
			continue
		}
		p := prefix + "/goldstone-ip:ipv4" + listEntry("address", "ip", ip.String())
		if err := tree.SetLeaf(p+"/prefix-length", datastore.String(strconv.Itoa(int(addr.PrefixLen)))); err != nil {
			return util.NewInternalError("build tree", err)
		}
	}
	return nil
}

func (a *Assembler) addNeighbors(tree *datastore.Tree, prefix string, index int32, ifname string, neighbors []kernel.NeighborMessage) error {
	for _, n := range neighbors {
		if n.Index != index || n.Type != unix.RTN_UNICAST {
			continue
		}
		ip, lladdr, ok := kernel.DecodeNeighbor(n)
		if !ok {
			util.WithInterface(ifname).Warn("Skipping neighbor entry without a destination address")
			continue
		}
		p := prefix + "/goldstone-ip:ipv4" + listEntry("neighbor", "ip", ip.String())
		var err error
		if lladdr != nil {
			err = tree.SetLeaf(p+"/link-layer-address", datastore.String(lladdr.String()))
		} else {
			err = tree.SetLeaf(p, nil)
		}
		if err != nil {
			return util.NewInternalError("build tree", err)
		}
	}
	return nil
}

func listEntry(name, key, value string) string {
	return xpath.Format([]xpath.Segment{{
		Name:       name,
		Predicates: []xpath.Predicate{{Key: key, Value: value}},
	}})
}
