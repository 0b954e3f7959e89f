package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/newtron-network/ifbridge/pkg/cli"
	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/server"
	"github.com/newtron-network/ifbridge/pkg/xpath"
	"github.com/spf13/cobra"
)

var (
	getTimeout time.Duration
	getTable   bool
	setIfName  string
)

var getCmd = &cobra.Command{
	Use:   "get [path]",
	Short: "Pull operational state from the daemon",
	Long: `Pull operational state of the module from the serving daemon.

The path defaults to the module's top-level container. The daemon always
answers with the whole tree.

Examples:
  ifbridge get
  ifbridge get --table
  ifbridge get -m goldstone-mgmt-interfaces "/goldstone-mgmt-interfaces:interfaces"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		module := cfg.GetModel()
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			reg, err := loadSchema(cfg)
			if err != nil {
				return err
			}
			if path, err = reg.TopContainer(module); err != nil {
				return err
			}
		}
		if _, err := xpath.Parse(path); err != nil {
			return err
		}

		return withClient(cmd.Context(), func(c *datastore.Client) error {
			data, err := c.RequestOperData(cmd.Context(), module, path, getTimeout)
			if err != nil {
				return err
			}
			if getTable {
				rows, err := interfaceRows(data, module)
				if err != nil {
					return err
				}
				t := cli.NewTable("NAME", "ADMIN", "OPER", "MTU", "MAC", "IPV4")
				for _, r := range rows {
					t.Row(r.Name, cli.Status(r.Admin), cli.Status(r.Oper), r.MTU, r.MAC, r.IPv4)
				}
				t.Flush()
				return nil
			}
			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				return err
			}
			fmt.Println(out.String())
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <leaf> <value>",
	Short: "Edit interface configuration",
	Long: `Edit a configuration leaf of one interface and publish the change.

Examples:
  ifbridge set -i eth1 admin-status DOWN
  ifbridge set -i eth1 admin-status UP`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if setIfName == "" {
			return fmt.Errorf("interface required: use -i <interface> flag")
		}
		if !xpath.Quotable(setIfName) {
			return fmt.Errorf("interface name %q cannot be addressed in a path", setIfName)
		}
		module := cfg.GetModel()
		reg, err := loadSchema(cfg)
		if err != nil {
			return err
		}
		top, err := reg.TopContainer(module)
		if err != nil {
			return err
		}

		leaf, value := args[0], args[1]
		if leaf == server.AdminStatusLeaf && value != "UP" && value != "DOWN" {
			return fmt.Errorf("admin-status must be UP or DOWN, got %q", value)
		}
		path := configPath(top, setIfName, leaf)

		return withClient(cmd.Context(), func(c *datastore.Client) error {
			change := datastore.Change{
				Operation: datastore.OpModified,
				Path:      path,
				Value:     datastore.String(value),
			}
			if err := c.Edit(cmd.Context(), module, []datastore.Change{change}); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", path, value)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print link state notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		module := cfg.GetModel()
		err := withClient(ctx, func(c *datastore.Client) error {
			return c.WatchNotifications(ctx, module, func(n datastore.Notification) error {
				ev, err := linkEvent(n, module)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %-16s %s\n", time.Now().Format("15:04:05"), ev.IfName, cli.Status(ev.OperStatus))
				return nil
			})
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	getCmd.Flags().DurationVar(&getTimeout, "timeout", 5*time.Second, "Time to wait for the daemon")
	getCmd.Flags().BoolVar(&getTable, "table", false, "Print interfaces as a table")
	setCmd.Flags().StringVarP(&setIfName, "interface", "i", "", "Interface name")
}

// configPath returns the configuration leaf path of one interface list entry.
func configPath(top, ifname, leaf string) string {
	return top + xpath.Format([]xpath.Segment{
		{Name: "interface", Predicates: []xpath.Predicate{{Key: "name", Value: ifname}}},
		{Name: "config"},
		{Name: leaf},
	})
}
