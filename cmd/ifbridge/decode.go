package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/server"
)

// ifRow is one line of `get --table`
type ifRow struct {
	Name  string
	Admin string
	Oper  string
	MTU   string
	MAC   string
	IPv4  string
}

type operInterface struct {
	Name  string `json:"name"`
	State struct {
		Admin string `json:"admin-status"`
		Oper  string `json:"oper-status"`
	} `json:"state"`
	Ethernet struct {
		State struct {
			MTU string `json:"mtu"`
			MAC string `json:"mac-address"`
		} `json:"state"`
	} `json:"ethernet"`
	IPv4 struct {
		Address []struct {
			IP        string `json:"ip"`
			PrefixLen string `json:"prefix-length"`
		} `json:"address"`
	} `json:"goldstone-ip:ipv4"`
}

// interfaceRows flattens an operational tree of module into table rows,
// in the order the daemon listed them.
func interfaceRows(data []byte, module string) ([]ifRow, error) {
	var doc map[string]struct {
		Interface []operInterface `json:"interface"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding operational data: %w", err)
	}
	top, ok := doc[module+":interfaces"]
	if !ok {
		return nil, nil
	}

	rows := make([]ifRow, 0, len(top.Interface))
	for _, intf := range top.Interface {
		var addrs []string
		for _, a := range intf.IPv4.Address {
			addrs = append(addrs, a.IP+"/"+a.PrefixLen)
		}
		rows = append(rows, ifRow{
			Name:  intf.Name,
			Admin: intf.State.Admin,
			Oper:  intf.State.Oper,
			MTU:   intf.Ethernet.State.MTU,
			MAC:   intf.Ethernet.State.MAC,
			IPv4:  strings.Join(addrs, ","),
		})
	}
	return rows, nil
}

// watchedEvent is the payload of a link state notification
type watchedEvent struct {
	IfName     string `json:"if-name"`
	OperStatus string `json:"oper-status"`
}

// linkEvent decodes a link state notification of module. The oper-status is
// empty when the kernel reported none.
func linkEvent(n datastore.Notification, module string) (watchedEvent, error) {
	var doc map[string]watchedEvent
	if err := json.Unmarshal(n.Data, &doc); err != nil {
		return watchedEvent{}, fmt.Errorf("decoding notification %s: %w", n.Path, err)
	}
	ev, ok := doc[module+":"+server.LinkStateEvent]
	if !ok {
		return watchedEvent{}, fmt.Errorf("notification %s: no %s payload", n.Path, server.LinkStateEvent)
	}
	return ev, nil
}
