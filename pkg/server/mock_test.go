package server

import (
	"context"
	"sync"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// MockKernel is a testify mock of the Kernel transport
type MockKernel struct {
	mock.Mock
}

func (m *MockKernel) ListLinks() ([]kernel.LinkMessage, error) {
	args := m.Called()
	return args.Get(0).([]kernel.LinkMessage), args.Error(1)
}

func (m *MockKernel) GetLinkByName(name string) (*kernel.LinkMessage, error) {
	args := m.Called(name)
	return args.Get(0).(*kernel.LinkMessage), args.Error(1)
}

func (m *MockKernel) SetLinkState(index int32, up bool) error {
	args := m.Called(index, up)
	return args.Error(0)
}

func (m *MockKernel) ListAddresses(index int32) ([]kernel.AddressMessage, error) {
	args := m.Called(index)
	return args.Get(0).([]kernel.AddressMessage), args.Error(1)
}

func (m *MockKernel) ListNeighbors(family int) ([]kernel.NeighborMessage, error) {
	args := m.Called(family)
	return args.Get(0).([]kernel.NeighborMessage), args.Error(1)
}

func (m *MockKernel) Subscribe(ctx context.Context) (<-chan kernel.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).(<-chan kernel.Event), args.Error(1)
}

type sentNotification struct {
	module string
	path   string
	tree   *datastore.Tree
}

// fakeStore records subscriptions and notifications
type fakeStore struct {
	mu            sync.Mutex
	changeModule  string
	changeHandler datastore.ChangeHandler
	enabled       bool
	operModule    string
	operPath      string
	operHandler   datastore.OperHandler
	sent          []sentNotification
	sendErr       error
	subscribeErr  error
	sentCh        chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{sentCh: make(chan struct{}, 64)}
}

func (f *fakeStore) SubscribeModuleChange(_ context.Context, module string, h datastore.ChangeHandler, enabled bool) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.changeModule, f.changeHandler, f.enabled = module, h, enabled
	return nil
}

func (f *fakeStore) SubscribeOperData(_ context.Context, module, path string, h datastore.OperHandler) error {
	f.operModule, f.operPath, f.operHandler = module, path, h
	return nil
}

func (f *fakeStore) SendNotification(_ context.Context, tree *datastore.Tree, module, eventPath string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentNotification{module: module, path: eventPath, tree: tree})
	f.mu.Unlock()
	f.sentCh <- struct{}{}
	return nil
}

func (f *fakeStore) notifications() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotification(nil), f.sent...)
}

func link(index int32, name string, up bool, attrs ...kernel.Attr) kernel.LinkMessage {
	var flags uint32
	if up {
		flags = unix.IFF_UP
	}
	all := append([]kernel.Attr{{Type: unix.IFLA_IFNAME, Value: nl.ZeroTerminated(name)}}, attrs...)
	return kernel.LinkMessage{Index: index, Flags: flags, Attrs: all}
}

func operState(s netlink.LinkOperState) kernel.Attr {
	return kernel.Attr{Type: unix.IFLA_OPERSTATE, Value: []byte{uint8(s)}}
}

func mtu(v uint32) kernel.Attr {
	return kernel.Attr{Type: unix.IFLA_MTU, Value: nl.Uint32Attr(v)}
}

func address(index uint32, ip []byte, prefixLen uint8) kernel.AddressMessage {
	return kernel.AddressMessage{
		Family:    unix.AF_INET,
		PrefixLen: prefixLen,
		Index:     index,
		Attrs:     []kernel.Attr{{Type: unix.IFA_LOCAL, Value: ip}},
	}
}

func neighbor(index int32, typ uint8, ip, lladdr []byte) kernel.NeighborMessage {
	n := kernel.NeighborMessage{Family: unix.AF_INET, Index: index, Type: typ}
	if ip != nil {
		n.Attrs = append(n.Attrs, kernel.Attr{Type: unix.NDA_DST, Value: ip})
	}
	if lladdr != nil {
		n.Attrs = append(n.Attrs, kernel.Attr{Type: unix.NDA_LLADDR, Value: lladdr})
	}
	return n
}
