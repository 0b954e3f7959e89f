package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/newtron-network/ifbridge/pkg/xpath"
)

// AdminStatusLeaf is the leaf whose edits are applied to the kernel
const AdminStatusLeaf = "admin-status"

// Dispatcher applies admin-status edits of the served module to kernel
// links. It implements datastore.ChangeHandler.
type Dispatcher struct {
	module  string
	kernel  Kernel
	metrics *Metrics
}

// OnChange handles one delivery. Only the change and enabled phases are
// acted on; both run the same logic. Every change in the batch is attempted
// in order and the failures are returned joined.
func (d *Dispatcher) OnChange(_ context.Context, event datastore.EventType, changes []datastore.Change) error {
	if event != datastore.EventChange && event != datastore.EventEnabled {
		return nil
	}

	var errs []error
	for _, c := range changes {
		applied, err := d.apply(c)
		switch {
		case err != nil:
			util.WithModule(d.module).Errorf("Change %s %s: %v", c.Operation, c.Path, err)
			d.metrics.change(resultError)
			errs = append(errs, err)
		case applied:
			d.metrics.change(resultOK)
		default:
			d.metrics.change(resultIgnored)
		}
	}
	return errors.Join(errs...)
}

// apply issues the kernel command for one change, if it calls for one.
func (d *Dispatcher) apply(c datastore.Change) (bool, error) {
	if c.Operation != datastore.OpCreated && c.Operation != datastore.OpModified {
		return false, nil
	}

	ifname, ok, err := xpath.InterfaceName(c.Path, d.module)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	leaf, err := xpath.LastName(c.Path)
	if err != nil {
		return false, err
	}
	if leaf != AdminStatusLeaf {
		return false, nil
	}

	up := c.Value != nil && *c.Value == "UP"
	util.WithInterface(ifname).Debugf("Setting admin status up=%v", up)
	return true, d.setAdminStatus(ifname, up)
}

func (d *Dispatcher) setAdminStatus(ifname string, up bool) error {
	link, err := d.kernel.GetLinkByName(ifname)
	if err != nil {
		return util.NewInternalError("resolve link "+ifname, err)
	}
	if link == nil {
		return util.NewInternalError("resolve link "+ifname, util.NewNotFoundError("interface", ifname))
	}
	if err := d.kernel.SetLinkState(link.Index, up); err != nil {
		return util.NewInternalError(fmt.Sprintf("set link %s up=%v", ifname, up), err)
	}
	return nil
}
