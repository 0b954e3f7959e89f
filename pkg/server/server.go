// Package server is the translation engine between kernel link state and the
// management data store. A Server owns the kernel handle and the schema
// context and shares them between three entry points:
//
//   - the Dispatcher, called for each change delivery of the served module
//   - the Assembler, called for each operational pull
//   - the Forwarder, a background loop over kernel link events
//
// The kernel handle and schema context are read-only after New and safe to
// use from all three.
package server

import (
	"context"
	"sync"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/newtron-network/ifbridge/pkg/schema"
	"github.com/newtron-network/ifbridge/pkg/util"
)

// Kernel is the rtnetlink transport used by the engine
type Kernel interface {
	ListLinks() ([]kernel.LinkMessage, error)
	GetLinkByName(name string) (*kernel.LinkMessage, error)
	SetLinkState(index int32, up bool) error
	ListAddresses(index int32) ([]kernel.AddressMessage, error)
	ListNeighbors(family int) ([]kernel.NeighborMessage, error)
	Subscribe(ctx context.Context) (<-chan kernel.Event, error)
}

// Datastore is the management data store session used by the engine
type Datastore interface {
	SubscribeModuleChange(ctx context.Context, module string, h datastore.ChangeHandler, enabled bool) error
	SubscribeOperData(ctx context.Context, module, path string, h datastore.OperHandler) error
	SendNotification(ctx context.Context, tree *datastore.Tree, module, eventPath string) error
}

// Server registers the engine with the data store and supervises the link
// event forwarder.
type Server struct {
	module string
	top    string

	kernel  Kernel
	store   Datastore
	metrics *Metrics

	assembler  *Assembler
	dispatcher *Dispatcher
	forwarder  *Forwarder

	startOnce    sync.Once
	forwarderEnd chan struct{}
	forwarderErr error
}

// New resolves module in reg and builds the engine. A module or top-level
// container missing from the schema is returned as a not-found error.
// metrics may be nil.
func New(module string, reg *schema.Registry, k Kernel, store Datastore, metrics *Metrics) (*Server, error) {
	top, err := reg.TopContainer(module)
	if err != nil {
		return nil, err
	}
	notifyPath, err := reg.NotificationPath(module, LinkStateEvent)
	if err != nil {
		return nil, err
	}

	addressSupport := reg.AddressSupport(module)
	util.WithModule(module).Infof("Top container %s, address support %v", top, addressSupport)

	return &Server{
		module:  module,
		top:     top,
		kernel:  k,
		store:   store,
		metrics: metrics,
		assembler: &Assembler{
			top:            top,
			addressSupport: addressSupport,
			kernel:         k,
			metrics:        metrics,
		},
		dispatcher: &Dispatcher{
			module:  module,
			kernel:  k,
			metrics: metrics,
		},
		forwarder: &Forwarder{
			module:  module,
			path:    notifyPath,
			store:   store,
			metrics: metrics,
		},
		forwarderEnd: make(chan struct{}),
	}, nil
}

// Start binds the kernel link event group, registers the change and
// operational-data subscriptions, and starts the forwarder. The forwarder is
// not restarted if it stops; see ForwarderDone.
func (s *Server) Start(ctx context.Context) error {
	events, err := s.kernel.Subscribe(ctx)
	if err != nil {
		return util.NewInternalError("subscribe link events", err)
	}

	if err := s.store.SubscribeModuleChange(ctx, s.module, s.dispatcher, true); err != nil {
		return err
	}
	if err := s.store.SubscribeOperData(ctx, s.module, s.top, s.assembler); err != nil {
		return err
	}

	s.startOnce.Do(func() {
		s.metrics.forwarderRunning(true)
		go s.runForwarder(ctx, events)
	})

	util.WithModule(s.module).Info("Serving")
	return nil
}

func (s *Server) runForwarder(ctx context.Context, events <-chan kernel.Event) {
	err := s.forwarder.Run(ctx, events)
	s.forwarderErr = err
	s.metrics.forwarderRunning(false)

	logger := util.WithModule(s.module)
	switch {
	case err != nil:
		logger.Errorf("Link event forwarder stopped: %v", err)
	case ctx.Err() != nil:
		logger.Info("Link event forwarder stopped on shutdown")
	default:
		logger.Error("Link event forwarder stopped: event stream closed")
	}
	close(s.forwarderEnd)
}

// ForwarderDone is closed when the link event forwarder has stopped.
func (s *Server) ForwarderDone() <-chan struct{} {
	return s.forwarderEnd
}

// ForwarderErr returns the error that stopped the forwarder. It is only
// meaningful after ForwarderDone is closed.
func (s *Server) ForwarderErr() error {
	return s.forwarderErr
}

// Assembler returns the operational snapshot assembler
func (s *Server) Assembler() *Assembler {
	return s.assembler
}

// Dispatcher returns the change dispatcher
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}
