// Package device reaches the management data store of a remote switch.
package device

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/newtron-network/ifbridge/pkg/util"
	"golang.org/x/crypto/ssh"
)

// TunnelConfig describes an SSH tunnel to a TCP service on a remote host
type TunnelConfig struct {
	Host     string
	Port     int // SSH port, 22 when zero
	User     string
	Password string
	// Target is the address dialed from the SSH host, e.g. "127.0.0.1:6379"
	Target  string
	Timeout time.Duration
}

// SSHTunnel forwards a local TCP port to a remote address through an SSH connection.
// Used to reach Redis on a switch where port 6379 is only bound to loopback.
type SSHTunnel struct {
	localAddr string // "127.0.0.1:<port>"
	target    string
	sshClient *ssh.Client
	listener  net.Listener
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSSHTunnel dials SSH on the configured host and opens a local listener on
// a random port. Connections to the local port are forwarded to cfg.Target.
func NewSSHTunnel(cfg TunnelConfig) (*SSHTunnel, error) {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		// Switch management networks do not distribute host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr: listener.Addr().String(),
		target:    cfg.Target,
		sshClient: sshClient,
		listener:  listener,
		done:      make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	util.WithField("ssh_host", addr).Infof("Tunnel %s -> %s", t.localAddr, cfg.Target)
	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that forwards
// to the target inside the SSH host.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *SSHTunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.listener.Close()
		err = t.sshClient.Close()
		t.wg.Wait()
	})
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.target)
	if err != nil {
		util.Logger.Warnf("Tunnel dial %s: %v", t.target, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	select {
	case <-done:
	case <-t.done:
	}
}
