package stream

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/poller"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/taskmgr"
	"github.com/juztas/xrootd/internal/core/transport"
)

// fakeSocket is a hand-written Socket double: plain data fields plus
// overridable *Fn hooks, in the style of this codebase's other test
// doubles, rather than a generated mock.
type fakeSocket struct {
	mu      sync.Mutex
	fd      int
	status  socket.ConnStatus
	sockErr int
	addr    string

	SendFn func([]byte) (int, error)
	RecvFn func([]byte) (int, error)

	closed bool
}

func newFakeSocket(fd int) *fakeSocket { return &fakeSocket{fd: fd} }

func (s *fakeSocket) Initialize() error { return nil }
func (s *fakeSocket) Connect(host string, port int) error {
	s.mu.Lock()
	s.addr = fmt.Sprintf("%s:%d", host, port)
	s.mu.Unlock()
	return nil
}
func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
func (s *fakeSocket) FD() int { return s.fd }
func (s *fakeSocket) GetSockOpt() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sockErr, nil
}
func (s *fakeSocket) Send(p []byte) (int, error) {
	if s.SendFn != nil {
		return s.SendFn(p)
	}
	return len(p), nil
}
func (s *fakeSocket) Recv(p []byte) (int, error) {
	if s.RecvFn != nil {
		return s.RecvFn(p)
	}
	return 0, io.EOF
}
func (s *fakeSocket) Status() socket.ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
func (s *fakeSocket) SetStatus(st socket.ConnStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
func (s *fakeSocket) ServerAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// fakePoller is a hand-written Poller double that just remembers what was
// asked of it, so tests can assert on registration/notification calls
// without a real epoll instance.
type fakePoller struct {
	mu        sync.Mutex
	listeners map[int]poller.Listener
	readOn    map[int]bool
	writeOn   map[int]bool
	removed   map[int]bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		listeners: make(map[int]poller.Listener),
		readOn:    make(map[int]bool),
		writeOn:   make(map[int]bool),
		removed:   make(map[int]bool),
	}
}

func (p *fakePoller) AddSocket(sock socket.Socket, listener poller.Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[sock.FD()] = listener
	return nil
}
func (p *fakePoller) RemoveSocket(sock socket.Socket) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed[sock.FD()] = true
	delete(p.listeners, sock.FD())
	return nil
}
func (p *fakePoller) EnableReadNotification(sock socket.Socket, enable bool, resolution time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readOn[sock.FD()] = enable
	return nil
}
func (p *fakePoller) EnableWriteNotification(sock socket.Socket, enable bool, resolution time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeOn[sock.FD()] = enable
	return nil
}
func (p *fakePoller) Stop() error { return nil }

func (p *fakePoller) writeEnabled(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeOn[fd]
}

// fakeTaskManager records scheduled tasks instead of running a real timer
// loop; tests advance time by calling RunDue explicitly.
type fakeTaskManager struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

type scheduledTask struct {
	task taskmgr.Task
	at   time.Time
}

func (m *fakeTaskManager) RegisterTask(task taskmgr.Task, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, scheduledTask{task: task, at: at})
}
func (m *fakeTaskManager) Stop() {}

func (m *fakeTaskManager) RunDue(now time.Time) int {
	m.mu.Lock()
	var due []scheduledTask
	var kept []scheduledTask
	for _, t := range m.tasks {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			kept = append(kept, t)
		}
	}
	m.tasks = kept
	m.mu.Unlock()
	for _, t := range due {
		t.task.Run(now)
	}
	return len(due)
}

func (m *fakeTaskManager) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// fakeTransport is a hand-written Transport double whose handshake
// behavior is driven by a simple step->(out,status) table set up per test.
type fakeTransport struct {
	mu    sync.Mutex
	steps []fakeHandshakeStep

	GetMessageFn func(buf *message.Buffer, sock socket.Socket) status.Status
	ttlElapsed   bool
}

type fakeHandshakeStep struct {
	out *message.Buffer
	st  status.Status
}

func (t *fakeTransport) HandShake(step int, in *message.Buffer, cd *transport.ChannelData) (*message.Buffer, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step >= len(t.steps) {
		return nil, status.Err(status.CodeAuthError, nil)
	}
	s := t.steps[step]
	return s.out, s.st
}

func (t *fakeTransport) GetMessage(buf *message.Buffer, sock socket.Socket) status.Status {
	if t.GetMessageFn != nil {
		return t.GetMessageFn(buf, sock)
	}
	return status.Done()
}

func (t *fakeTransport) Disconnect(cd *transport.ChannelData, subStreamNum int) {}

func (t *fakeTransport) IsStreamTTLElapsed(idleFor time.Duration, cd *transport.ChannelData) bool {
	return t.ttlElapsed
}

func (t *fakeTransport) BuildBindRequest(cd *transport.ChannelData, tempStreamNum int) *message.Buffer {
	return message.New([]byte("bind"))
}

func (t *fakeTransport) ParseBindResponse(resp *message.Buffer) (int, status.Status) {
	return 1, status.Done()
}
