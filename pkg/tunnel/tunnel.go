package tunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config describes the SSH endpoint the tunnel authenticates against.
// Either Password or KeyPath must be set.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	KeyPath       string
	KeyPassphrase string
}

// Tunnel forwards connections from a loopback listener to a remote
// host:port over an authenticated SSH session. It is owned by exactly
// one database connection and must be closed with it.
type Tunnel struct {
	client   *ssh.Client
	listener net.Listener

	LocalPort  int
	remoteAddr string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Open dials the SSH host, binds an ephemeral loopback port and starts
// the forwarding loop. The returned tunnel keeps accepting connections
// until Close is called, so a single tunnel can carry any number of
// sequential streams.
func Open(cfg Config, remoteHost string, remotePort int) (*Tunnel, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	sshPort := cfg.Port
	if sshPort == 0 {
		sshPort = 22
	}

	sshAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(sshPort))
	client, err := ssh.Dial("tcp", sshAddr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH host %s: %w", sshAddr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to bind local tunnel port: %w", err)
	}

	t := &Tunnel{
		client:     client,
		listener:   listener,
		LocalPort:  listener.Addr().(*net.TCPAddr).Port,
		remoteAddr: net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)),
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key %s: %w", cfg.KeyPath, err)
		}

		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key %s: %w", cfg.KeyPath, err)
		}

		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}

	return nil, fmt.Errorf("ssh tunnel requires a password or a private key path")
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()

	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			// Transient accept error, keep serving.
			continue
		}

		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		return
	}
	defer remote.Close()

	var streams sync.WaitGroup
	streams.Add(2)

	go func() {
		defer streams.Done()
		io.Copy(remote, local)
		if cw, ok := remote.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}()

	go func() {
		defer streams.Done()
		io.Copy(local, remote)
	}()

	streams.Wait()
}

// Addr returns the loopback address downstream commands should dial.
func (t *Tunnel) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(t.LocalPort))
}

// Close tears down the listener, the SSH session and every in-flight
// forward, then waits for the goroutines to exit.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	lerr := t.listener.Close()
	cerr := t.client.Close()
	t.wg.Wait()

	if lerr != nil {
		return lerr
	}
	return cerr
}
