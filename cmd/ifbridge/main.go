// ifbridge - kernel link state bridge for the management data store
//
// The serve command runs the daemon: it answers operational pulls for the
// selected schema module from kernel netlink state, applies admin-status
// edits to kernel interfaces and publishes link state notifications.
//
// The get, set and watch commands are data store clients for inspecting and
// driving a running daemon:
//
//	ifbridge serve -m goldstone-mgmt-interfaces
//	ifbridge get --table
//	ifbridge set -i eth1 admin-status DOWN
//	ifbridge watch
package main

import (
	"fmt"
	"os"

	"github.com/newtron-network/ifbridge/pkg/settings"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/newtron-network/ifbridge/pkg/version"
	"github.com/spf13/cobra"
)

var (
	// Global option flags
	settingsPath string
	redisAddr    string
	redisDB      int
	verbose      bool
	logLevel     string
	logJSON      bool

	// Global state
	cfg *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "ifbridge",
	Short:             "Kernel link state bridge for the management data store",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}

		path := settingsPath
		if path == "" {
			path = settings.DefaultSettingsPath()
		}
		var err error
		cfg, err = settings.LoadFrom(path)
		if err != nil {
			return fmt.Errorf("loading settings %s: %w", path, err)
		}
		applyFlags(cmd, cfg)

		level := cfg.GetLogLevel()
		if verbose {
			level = "debug"
		}
		if err := util.SetLogLevel(level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		if cfg.LogJSON {
			util.SetJSONFormat()
		}
		return nil
	},
}

// applyFlags overrides settings with flags given on the command line.
func applyFlags(cmd *cobra.Command, s *settings.Settings) {
	flags := cmd.Flags()
	if flags.Changed("redis") {
		s.RedisAddr = redisAddr
	}
	if flags.Changed("redis-db") {
		s.SetRedisDB(redisDB)
	}
	if flags.Changed("log-level") {
		s.LogLevel = logLevel
	}
	if flags.Changed("log-json") {
		s.LogJSON = logJSON
	}
	if flags.Changed("model") {
		s.Model = model
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default "+settings.DefaultSettingsPath()+")")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Data store address host:port")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", settings.DefaultRedisDB, "Data store database number")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "JSON log output")

	for _, cmd := range []*cobra.Command{serveCmd, getCmd, setCmd, watchCmd} {
		addModelFlag(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "client", Title: "Data Store Client:"},
	)
	serveCmd.GroupID = "daemon"
	rootCmd.AddCommand(serveCmd)
	for _, cmd := range []*cobra.Command{getCmd, setCmd, watchCmd} {
		cmd.GroupID = "client"
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}
