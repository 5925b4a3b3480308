package tunnel

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

const testPassword = "tunnel-test-secret"

// startEchoServer runs a TCP server that writes back everything it reads.
func startEchoServer(t *testing.T) net.Addr {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return l.Addr()
}

// startSSHServer runs a minimal in-process SSH server that accepts
// password auth and serves direct-tcpip channels.
func startSSHServer(t *testing.T) net.Addr {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if string(password) == testPassword {
				return nil, nil
			}
			return nil, io.EOF
		},
	}
	config.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start ssh server: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, config)
		}
	}()

	return l.Addr()
}

func serveSSHConn(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "direct-tcpip" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}

		var payload struct {
			DestAddr string
			DestPort uint32
			OrigAddr string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err != nil {
			newCh.Reject(ssh.ConnectionFailed, "bad payload")
			continue
		}

		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go ssh.DiscardRequests(chReqs)

		go func(ch ssh.Channel, addr string) {
			defer ch.Close()
			dest, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			defer dest.Close()

			done := make(chan struct{}, 2)
			go func() { io.Copy(dest, ch); done <- struct{}{} }()
			go func() { io.Copy(ch, dest); done <- struct{}{} }()
			<-done
		}(ch, net.JoinHostPort(payload.DestAddr, strconv.Itoa(int(payload.DestPort))))
	}
}

func TestOpen_ForwardsToRemote(t *testing.T) {
	echoAddr := startEchoServer(t)
	sshAddr := startSSHServer(t)

	echoTCP := echoAddr.(*net.TCPAddr)
	sshTCP := sshAddr.(*net.TCPAddr)

	tn, err := Open(Config{
		Host:     "127.0.0.1",
		Port:     sshTCP.Port,
		User:     "tester",
		Password: testPassword,
	}, "127.0.0.1", echoTCP.Port)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer tn.Close()

	if tn.LocalPort == 0 {
		t.Fatal("Open() assigned no local port")
	}

	conn, err := net.Dial("tcp", tn.Addr())
	if err != nil {
		t.Fatalf("failed to dial tunnel: %v", err)
	}
	defer conn.Close()

	payload := []byte("SELECT 1;\n")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("failed to write through tunnel: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("failed to read echo through tunnel: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("echoed data = %q, want %q", got, payload)
	}
}

func TestOpen_SequentialStreams(t *testing.T) {
	echoAddr := startEchoServer(t)
	sshAddr := startSSHServer(t)

	tn, err := Open(Config{
		Host:     "127.0.0.1",
		Port:     sshAddr.(*net.TCPAddr).Port,
		User:     "tester",
		Password: testPassword,
	}, "127.0.0.1", echoAddr.(*net.TCPAddr).Port)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer tn.Close()

	// One tunnel must serve several logical streams over its lifetime.
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", tn.Addr())
		if err != nil {
			t.Fatalf("stream %d: failed to dial tunnel: %v", i, err)
		}

		msg := []byte("stream-" + strconv.Itoa(i))
		if _, err := conn.Write(msg); err != nil {
			conn.Close()
			t.Fatalf("stream %d: write failed: %v", i, err)
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		got := make([]byte, len(msg))
		if _, err := io.ReadFull(conn, got); err != nil {
			conn.Close()
			t.Fatalf("stream %d: read failed: %v", i, err)
		}
		conn.Close()

		if !bytes.Equal(got, msg) {
			t.Errorf("stream %d: got %q, want %q", i, got, msg)
		}
	}
}

func TestClose_ReleasesListener(t *testing.T) {
	echoAddr := startEchoServer(t)
	sshAddr := startSSHServer(t)

	tn, err := Open(Config{
		Host:     "127.0.0.1",
		Port:     sshAddr.(*net.TCPAddr).Port,
		User:     "tester",
		Password: testPassword,
	}, "127.0.0.1", echoAddr.(*net.TCPAddr).Port)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	addr := tn.Addr()
	if err := tn.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Error("tunnel listener still accepting connections after Close()")
	}

	// Close is idempotent.
	if err := tn.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestOpen_AuthConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "no credentials",
			cfg:  Config{Host: "127.0.0.1", User: "tester"},
		},
		{
			name: "missing key file",
			cfg:  Config{Host: "127.0.0.1", User: "tester", KeyPath: "/nonexistent/id_ed25519"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.cfg, "127.0.0.1", 5432); err == nil {
				t.Error("Open() expected error, got nil")
			}
		})
	}
}

func TestOpen_BadPassword(t *testing.T) {
	sshAddr := startSSHServer(t)

	_, err := Open(Config{
		Host:     "127.0.0.1",
		Port:     sshAddr.(*net.TCPAddr).Port,
		User:     "tester",
		Password: "wrong",
	}, "127.0.0.1", 5432)
	if err == nil {
		t.Fatal("Open() with bad password expected error, got nil")
	}
}
