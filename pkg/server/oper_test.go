package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/newtron-network/ifbridge/pkg/schema"
	"github.com/newtron-network/ifbridge/pkg/util"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const (
	ifModule   = "goldstone-interfaces"
	mgmtModule = "goldstone-mgmt-interfaces"
)

func newTestServer(t *testing.T, module string) (*Server, *MockKernel, *fakeStore, *Metrics) {
	t.Helper()
	mk := new(MockKernel)
	store := newFakeStore()
	metrics := NewMetrics()
	s, err := New(module, schema.Default(), mk, store, metrics)
	require.NoError(t, err)
	return s, mk, store, metrics
}

func leaf(t *testing.T, tree *datastore.Tree, path string) string {
	t.Helper()
	v, ok := tree.Get(path)
	require.True(t, ok, "missing leaf %s", path)
	require.NotNil(t, v, "valueless leaf %s", path)
	return *v
}

func TestAssemble_Links(t *testing.T) {
	s, mk, _, metrics := newTestServer(t, ifModule)
	mac := net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

	mk.On("ListLinks").Return([]kernel.LinkMessage{
		link(1, "eth0", true, mtu(1500), operState(netlink.OperUp), kernel.Attr{Type: unix.IFLA_ADDRESS, Value: mac}),
		link(2, "eth1", false, mtu(65536), operState(netlink.OperTesting)),
		link(3, "eth2", true, operState(netlink.OperDormant)),
	}, nil).Once()

	tree, err := s.Assembler().OnOperData(context.Background(), "/goldstone-interfaces:interfaces/interface[name='eth0']")
	require.NoError(t, err)

	p0 := "/goldstone-interfaces:interfaces/interface[name='eth0']"
	assert.Equal(t, "eth0", leaf(t, tree, p0+"/name"))
	assert.Equal(t, "UP", leaf(t, tree, p0+"/state/oper-status"))
	assert.Equal(t, "UP", leaf(t, tree, p0+"/state/admin-status"))
	assert.Equal(t, "1500", leaf(t, tree, p0+"/ethernet/state/mtu"))
	assert.Equal(t, "52:54:00:12:34:56", leaf(t, tree, p0+"/ethernet/state/mac-address"))

	p1 := "/goldstone-interfaces:interfaces/interface[name='eth1']"
	assert.Equal(t, "DOWN", leaf(t, tree, p1+"/state/oper-status"))
	assert.Equal(t, "DOWN", leaf(t, tree, p1+"/state/admin-status"))
	_, ok := tree.Get(p1 + "/ethernet/state/mtu")
	assert.False(t, ok, "mtu 65536 must be left unset")

	// oper-status and admin-status are independent signals
	p2 := "/goldstone-interfaces:interfaces/interface[name='eth2']"
	assert.Equal(t, "DORMANT", leaf(t, tree, p2+"/state/oper-status"))
	assert.Equal(t, "UP", leaf(t, tree, p2+"/state/admin-status"))

	mk.AssertExpectations(t)
	mk.AssertNotCalled(t, "ListAddresses", mock.Anything)
	mk.AssertNotCalled(t, "ListNeighbors", mock.Anything)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.OperPulls.WithLabelValues(resultOK)))
}

func TestAssemble_KernelOrder(t *testing.T) {
	s, mk, _, _ := newTestServer(t, ifModule)
	mk.On("ListLinks").Return([]kernel.LinkMessage{
		link(9, "lo", true),
		link(2, "eth0", true),
	}, nil)

	tree, err := s.Assembler().Assemble()
	require.NoError(t, err)

	var names []string
	for _, l := range tree.Leaves() {
		if strings.HasSuffix(l.Path, "]/name") {
			names = append(names, *l.Value)
		}
	}
	assert.Equal(t, []string{"lo", "eth0"}, names)
}

func TestAssemble_SkipsUnaddressableName(t *testing.T) {
	s, mk, _, _ := newTestServer(t, ifModule)
	mk.On("ListLinks").Return([]kernel.LinkMessage{
		link(1, "eth0", true),
		link(2, `we"ird'if`, true, mtu(1500)),
		link(3, "it's", false),
	}, nil)

	tree, err := s.Assembler().Assemble()
	require.NoError(t, err)

	var names []string
	for _, l := range tree.Leaves() {
		if strings.HasSuffix(l.Path, "/name") {
			names = append(names, *l.Value)
		}
	}
	assert.Equal(t, []string{"eth0", "it's"}, names)
	assert.Equal(t, "DOWN", leaf(t, tree, `/goldstone-interfaces:interfaces/interface[name="it's"]/state/admin-status`))
}

func TestAssemble_Addresses(t *testing.T) {
	s, mk, _, _ := newTestServer(t, mgmtModule)
	mac := []byte{0, 0x11, 0x22, 0x33, 0x44, 0x55}

	mk.On("ListNeighbors", unix.AF_INET).Return([]kernel.NeighborMessage{
		neighbor(1, unix.RTN_UNICAST, []byte{10, 0, 0, 2}, mac),
		neighbor(2, unix.RTN_UNICAST, []byte{10, 0, 1, 2}, nil),
		neighbor(1, unix.RTN_MULTICAST, []byte{10, 0, 0, 9}, mac),
		neighbor(1, unix.RTN_UNICAST, nil, mac),
	}, nil).Once()
	mk.On("ListLinks").Return([]kernel.LinkMessage{
		link(1, "eth0", true),
		link(2, "eth1", true),
	}, nil).Once()
	mk.On("ListAddresses", int32(1)).Return([]kernel.AddressMessage{
		address(1, []byte{10, 0, 0, 1}, 24),
		{Family: unix.AF_INET, PrefixLen: 8, Index: 1},
	}, nil).Once()
	mk.On("ListAddresses", int32(2)).Return([]kernel.AddressMessage(nil), nil).Once()

	tree, err := s.Assembler().Assemble()
	require.NoError(t, err)

	p0 := "/goldstone-mgmt-interfaces:interfaces/interface[name='eth0']/goldstone-ip:ipv4"
	p1 := "/goldstone-mgmt-interfaces:interfaces/interface[name='eth1']/goldstone-ip:ipv4"

	assert.Equal(t, "10.0.0.1", leaf(t, tree, p0+"/address[ip='10.0.0.1']/ip"))
	assert.Equal(t, "24", leaf(t, tree, p0+"/address[ip='10.0.0.1']/prefix-length"))
	assert.Equal(t, "00:11:22:33:44:55", leaf(t, tree, p0+"/neighbor[ip='10.0.0.2']/link-layer-address"))
	assert.Equal(t, "10.0.1.2", leaf(t, tree, p1+"/neighbor[ip='10.0.1.2']/ip"))

	_, ok := tree.Get(p1 + "/neighbor[ip='10.0.1.2']/link-layer-address")
	assert.False(t, ok)
	_, ok = tree.Get(p0 + "/neighbor[ip='10.0.0.9']/ip")
	assert.False(t, ok, "non-unicast neighbors are filtered")

	for _, l := range tree.Leaves() {
		if strings.HasPrefix(l.Path, p1) {
			assert.NotContains(t, l.Path, "address[", "eth0 address leaked into eth1")
		}
	}
	mk.AssertExpectations(t)
}

func TestAssemble_NeighborFetchedBeforeLinks(t *testing.T) {
	s, mk, _, _ := newTestServer(t, mgmtModule)
	mk.On("ListNeighbors", unix.AF_INET).Return([]kernel.NeighborMessage(nil), errors.New("ENOBUFS")).Once()

	_, err := s.Assembler().Assemble()
	assert.ErrorIs(t, err, util.ErrInternal)
	mk.AssertNotCalled(t, "ListLinks")
}

func TestAssemble_Errors(t *testing.T) {
	t.Run("list links", func(t *testing.T) {
		s, mk, _, metrics := newTestServer(t, ifModule)
		mk.On("ListLinks").Return([]kernel.LinkMessage(nil), errors.New("EBUSY"))

		tree, err := s.Assembler().OnOperData(context.Background(), "")
		assert.Nil(t, tree)
		assert.ErrorIs(t, err, util.ErrInternal)
		assert.Equal(t, 1.0, promtest.ToFloat64(metrics.OperPulls.WithLabelValues(resultError)))
	})

	t.Run("missing name", func(t *testing.T) {
		s, mk, _, _ := newTestServer(t, ifModule)
		mk.On("ListLinks").Return([]kernel.LinkMessage{
			link(1, "eth0", true),
			{Index: 2, Attrs: []kernel.Attr{mtu(1500)}},
		}, nil)

		_, err := s.Assembler().Assemble()
		assert.ErrorIs(t, err, util.ErrInternal)
		assert.ErrorIs(t, err, util.ErrDecode)
	})

	t.Run("list addresses", func(t *testing.T) {
		s, mk, _, _ := newTestServer(t, mgmtModule)
		mk.On("ListNeighbors", unix.AF_INET).Return([]kernel.NeighborMessage(nil), nil)
		mk.On("ListLinks").Return([]kernel.LinkMessage{link(1, "eth0", true)}, nil)
		mk.On("ListAddresses", int32(1)).Return([]kernel.AddressMessage(nil), errors.New("EINTR"))

		_, err := s.Assembler().Assemble()
		assert.ErrorIs(t, err, util.ErrInternal)
	})
}
