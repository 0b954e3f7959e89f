package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/sirupsen/logrus"
)

// LinkStateEvent is the notification emitted for each kernel link event
const LinkStateEvent = "interface-link-state-notify-event"

// LinkEvent is the translated form of one kernel link message
type LinkEvent struct {
	IfName     string
	OperStatus *kernel.OperStatus
}

// Forwarder turns kernel link events into data store notifications
type Forwarder struct {
	module  string
	path    string
	store   Datastore
	metrics *Metrics
}

// Run forwards events in arrival order until the stream closes or ctx is
// done, returning nil in both cases. A stream error, a decode failure or a
// send failure ends the loop with that error.
func (f *Forwarder) Run(ctx context.Context, events <-chan kernel.Event) error {
	for {
		var ev kernel.Event
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case ev, ok = <-events:
			if !ok {
				return nil
			}
		}

		if ev.Err != nil {
			return fmt.Errorf("link event stream: %w", ev.Err)
		}
		if !ev.NewLink() {
			continue
		}
		if err := f.forward(ctx, ev.Link); err != nil {
			f.metrics.notification(resultError)
			return err
		}
		f.metrics.notification(resultOK)
	}
}

func (f *Forwarder) forward(ctx context.Context, link kernel.LinkMessage) error {
	la, err := kernel.DecodeLink(link.Attrs)
	if err != nil {
		return fmt.Errorf("link event %d: %w", link.Index, err)
	}
	le := LinkEvent{IfName: la.Name, OperStatus: la.OperStatus}

	tree, err := f.render(le)
	if err != nil {
		return err
	}
	if util.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := json.Marshal(tree); err == nil {
			util.WithInterface(le.IfName).Debugf("Notification %s", data)
		}
	}

	if err := f.store.SendNotification(ctx, tree, f.module, f.path); err != nil {
		return fmt.Errorf("send notification for %s: %w", le.IfName, err)
	}
	return nil
}

func (f *Forwarder) render(le LinkEvent) (*datastore.Tree, error) {
	tree := datastore.NewTree()
	if err := tree.SetLeaf(f.path+"/if-name", datastore.String(le.IfName)); err != nil {
		return nil, err
	}
	if le.OperStatus != nil {
		if err := tree.SetLeaf(f.path+"/oper-status", datastore.String(le.OperStatus.String())); err != nil {
			return nil, err
		}
	}
	return tree, nil
}
