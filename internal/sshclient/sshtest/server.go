// Package sshtest runs an in-process SSH server that answers exec requests
// with a Go handler, for exercising remote execution without a real host.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Handler serves one exec request and returns its exit status. killed is
// closed when the client sends a signal or goes away.
type Handler func(cmd string, stdout, stderr io.Writer, killed <-chan struct{}) uint32

type Server struct {
	Host    string
	Port    int
	HostKey ssh.PublicKey

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	commands []string
}

// Start listens on a loopback port and accepts user/password logins. The
// server is closed when the test ends.
func Start(t testing.TB, user, password string, h Handler) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pw) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)

	s := &Server{Host: host, Port: p, HostKey: signer.PublicKey(), ln: ln}
	s.wg.Add(1)
	go s.accept(cfg, h)
	t.Cleanup(s.Close)
	return s
}

// Addr is host:port as a client dials it.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Commands lists the exec requests received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *Server) accept(cfg *ssh.ServerConfig, h Handler) {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(nc, cfg, h)
	}
}

func (s *Server) serveConn(nc net.Conn, cfg *ssh.ServerConfig, h Handler) {
	sconn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "only session channels")
			continue
		}
		ch, creqs, err := nch.Accept()
		if err != nil {
			return
		}
		go s.serveSession(ch, creqs, h)
	}
}

func (s *Server) serveSession(ch ssh.Channel, reqs <-chan *ssh.Request, h Handler) {
	killed := make(chan struct{})
	var once sync.Once
	kill := func() { once.Do(func() { close(killed) }) }
	defer kill()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()
			_ = req.Reply(true, nil)

			go func() {
				status := h(payload.Command, ch, ch.Stderr(), killed)
				_ = ch.CloseWrite()
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				_ = ch.Close()
			}()
		case "signal":
			kill()
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}
