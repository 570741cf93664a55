package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/juztas/xrootd/internal/core/socket"
)

// pipeSocket adapts a raw fd from unix.Socketpair to socket.Socket, just
// enough to drive EpollPoller in tests without a real TCP connection.
type pipeSocket struct {
	fd     int
	status socket.ConnStatus
}

func (p *pipeSocket) Initialize() error                   { return nil }
func (p *pipeSocket) Connect(host string, port int) error { return nil }
func (p *pipeSocket) Close() error                        { return unix.Close(p.fd) }
func (p *pipeSocket) FD() int                              { return p.fd }
func (p *pipeSocket) GetSockOpt() (int, error)             { return 0, nil }
func (p *pipeSocket) Send(b []byte) (int, error)           { return unix.Write(p.fd, b) }
func (p *pipeSocket) Recv(b []byte) (int, error)           { return unix.Read(p.fd, b) }
func (p *pipeSocket) Status() socket.ConnStatus            { return p.status }
func (p *pipeSocket) SetStatus(s socket.ConnStatus)        { p.status = s }
func (p *pipeSocket) ServerAddress() string                { return "pipe" }

func TestEpollPollerFiresReadyToWrite(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a := &pipeSocket{fd: fds[0]}
	b := &pipeSocket{fd: fds[1]}
	defer a.Close()
	defer b.Close()

	p, err := NewEpollPoller()
	if err != nil {
		t.Fatalf("NewEpollPoller: %v", err)
	}
	defer p.Stop()

	events := make(chan EventKind, 4)
	if err := p.AddSocket(a, ListenerFunc(func(kind EventKind, sock socket.Socket) {
		events <- kind
	})); err != nil {
		t.Fatalf("AddSocket: %v", err)
	}

	if err := p.EnableWriteNotification(a, true, time.Second); err != nil {
		t.Fatalf("EnableWriteNotification: %v", err)
	}

	select {
	case kind := <-events:
		if kind != EventReadyToWrite {
			t.Fatalf("got event %v, want EventReadyToWrite", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("a freshly connected socketpair end should be immediately writable")
	}
}

func TestEpollPollerFiresReadTimeoutWhenNothingArrives(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a := &pipeSocket{fd: fds[0]}
	b := &pipeSocket{fd: fds[1]}
	defer a.Close()
	defer b.Close()

	p, err := NewEpollPoller()
	if err != nil {
		t.Fatalf("NewEpollPoller: %v", err)
	}
	defer p.Stop()

	events := make(chan EventKind, 4)
	if err := p.AddSocket(a, ListenerFunc(func(kind EventKind, sock socket.Socket) {
		events <- kind
	})); err != nil {
		t.Fatalf("AddSocket: %v", err)
	}
	if err := p.EnableReadNotification(a, true, 200*time.Millisecond); err != nil {
		t.Fatalf("EnableReadNotification: %v", err)
	}

	select {
	case kind := <-events:
		if kind != EventReadTimeout {
			t.Fatalf("got event %v, want EventReadTimeout", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a read timeout since nothing was ever written")
	}
}
