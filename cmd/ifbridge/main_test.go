package main

import (
	"encoding/json"
	"testing"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/settings"
)

func TestConfigPath(t *testing.T) {
	tests := []struct {
		top, ifname, leaf string
		want              string
	}{
		{
			"/goldstone-interfaces:interfaces", "eth1", "admin-status",
			"/goldstone-interfaces:interfaces/interface[name='eth1']/config/admin-status",
		},
		{
			"/goldstone-mgmt-interfaces:interfaces", "it's", "admin-status",
			`/goldstone-mgmt-interfaces:interfaces/interface[name="it's"]/config/admin-status`,
		},
	}
	for _, tt := range tests {
		if got := configPath(tt.top, tt.ifname, tt.leaf); got != tt.want {
			t.Errorf("configPath(%q) = %q, want %q", tt.ifname, got, tt.want)
		}
	}
}

func TestInterfaceRows(t *testing.T) {
	tree := datastore.NewTree()
	p := "/goldstone-mgmt-interfaces:interfaces/interface[name='eth0']"
	leaves := [][2]string{
		{p + "/name", "eth0"},
		{p + "/state/admin-status", "UP"},
		{p + "/state/oper-status", "DORMANT"},
		{p + "/ethernet/state/mtu", "1500"},
		{p + "/goldstone-ip:ipv4/address[ip='10.0.0.1']/prefix-length", "24"},
	}
	for _, l := range leaves {
		if err := tree.SetLeaf(l[0], datastore.String(l[1])); err != nil {
			t.Fatalf("SetLeaf(%s): %v", l[0], err)
		}
	}
	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := interfaceRows(data, "goldstone-mgmt-interfaces")
	if err != nil {
		t.Fatalf("interfaceRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows from %s", len(rows), data)
	}
	want := ifRow{Name: "eth0", Admin: "UP", Oper: "DORMANT", MTU: "1500", IPv4: "10.0.0.1/24"}
	if rows[0] != want {
		t.Errorf("row = %+v, want %+v", rows[0], want)
	}

	if rows, _ := interfaceRows(data, "goldstone-interfaces"); len(rows) != 0 {
		t.Errorf("other module rows = %v", rows)
	}
	if _, err := interfaceRows([]byte("{"), "goldstone-interfaces"); err == nil {
		t.Error("expected decode error")
	}
}

func TestLinkEvent(t *testing.T) {
	n := datastore.Notification{
		Path: "/goldstone-interfaces:interface-link-state-notify-event",
		Data: json.RawMessage(`{"goldstone-interfaces:interface-link-state-notify-event":{"if-name":"eth0","oper-status":"UP"}}`),
	}
	ev, err := linkEvent(n, "goldstone-interfaces")
	if err != nil {
		t.Fatalf("linkEvent: %v", err)
	}
	if ev.IfName != "eth0" || ev.OperStatus != "UP" {
		t.Errorf("event = %+v", ev)
	}

	if _, err := linkEvent(n, "goldstone-mgmt-interfaces"); err == nil {
		t.Error("expected error for foreign module")
	}
}

func TestApplyFlags(t *testing.T) {
	s := &settings.Settings{RedisAddr: "10.0.0.1:6379", LogLevel: "warn"}
	cmd := getCmd
	if err := cmd.ParseFlags([]string{"-m", "goldstone-mgmt-interfaces", "--redis-db", "0"}); err != nil {
		t.Fatal(err)
	}

	applyFlags(cmd, s)
	if s.GetModel() != "goldstone-mgmt-interfaces" {
		t.Errorf("model = %q", s.GetModel())
	}
	if s.GetRedisDB() != 0 {
		t.Errorf("redis db = %d, want explicit 0", s.GetRedisDB())
	}
	if s.GetRedisAddr() != "10.0.0.1:6379" || s.GetLogLevel() != "warn" {
		t.Errorf("unchanged settings overridden: %+v", s)
	}
}
