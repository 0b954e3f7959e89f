package main

import (
	"context"
	"fmt"
	"os"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/device"
	"github.com/newtron-network/ifbridge/pkg/schema"
	"github.com/newtron-network/ifbridge/pkg/settings"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var model string // -m, --model

func addModelFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&model, "model", "m", settings.DefaultModel, "Schema module")
}

// loadSchema returns the schema registry named in settings, or the built-in one.
func loadSchema(s *settings.Settings) (*schema.Registry, error) {
	if s.SchemaFile == "" {
		return schema.Default(), nil
	}
	reg, err := schema.LoadFile(s.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return reg, nil
}

// storeAddress returns the address to dial for the data store. When an SSH
// host is configured a tunnel is opened and its local end is returned; the
// returned function closes it.
func storeAddress(s *settings.Settings) (string, func(), error) {
	if s.SSHHost == "" {
		return s.GetRedisAddr(), func() {}, nil
	}

	password := s.SSHPass
	if password == "" && s.SSHUser != "" {
		var err error
		if password, err = promptPassword(s.SSHUser, s.SSHHost); err != nil {
			return "", nil, err
		}
	}

	tun, err := device.NewSSHTunnel(device.TunnelConfig{
		Host:     s.SSHHost,
		Port:     s.GetSSHPort(),
		User:     s.SSHUser,
		Password: password,
		Target:   s.GetRedisAddr(),
	})
	if err != nil {
		return "", nil, fmt.Errorf("ssh tunnel: %w", err)
	}
	return tun.LocalAddr(), func() { tun.Close() }, nil
}

func promptPassword(user, host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("ssh_pass not set and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s@%s's password: ", user, host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// withClient connects a data store client and runs fn with it.
func withClient(ctx context.Context, fn func(*datastore.Client) error) error {
	addr, closeTunnel, err := storeAddress(cfg)
	if err != nil {
		return err
	}
	defer closeTunnel()

	c := datastore.NewClient(addr, cfg.GetRedisDB())
	defer c.Close()
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	util.Logger.Debugf("Connected to data store %s db %d", addr, cfg.GetRedisDB())
	return fn(c)
}
