package multistream

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/poller"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/stream"
	"github.com/juztas/xrootd/internal/core/taskmgr"
	"github.com/juztas/xrootd/internal/core/transport"
)

// The fakes below mirror the ones stream's own tests use — hand-written
// doubles with overridable hooks rather than a generated mock. They live
// here, not in package stream, because a sub-stream's collaborators are
// small enough to fake per-package and bindPendingStream's behavior is what
// is actually under test.

type fakeSocket struct {
	mu      sync.Mutex
	fd      int
	status  socket.ConnStatus
	sockErr int
	addr    string
}

func newFakeSocket(fd int) *fakeSocket { return &fakeSocket{fd: fd} }

func (s *fakeSocket) Initialize() error { return nil }
func (s *fakeSocket) Connect(host string, port int) error {
	s.mu.Lock()
	s.addr = fmt.Sprintf("%s:%d", host, port)
	s.mu.Unlock()
	return nil
}
func (s *fakeSocket) Close() error { return nil }
func (s *fakeSocket) FD() int      { return s.fd }
func (s *fakeSocket) GetSockOpt() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sockErr, nil
}
func (s *fakeSocket) Send(p []byte) (int, error) { return len(p), nil }
func (s *fakeSocket) Recv(p []byte) (int, error) { return 0, io.EOF }
func (s *fakeSocket) Status() socket.ConnStatus  { s.mu.Lock(); defer s.mu.Unlock(); return s.status }
func (s *fakeSocket) SetStatus(st socket.ConnStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
func (s *fakeSocket) ServerAddress() string { return s.addr }

type fakePoller struct {
	mu      sync.Mutex
	writeOn map[int]bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{writeOn: make(map[int]bool)}
}
func (p *fakePoller) AddSocket(sock socket.Socket, l poller.Listener) error { return nil }
func (p *fakePoller) RemoveSocket(sock socket.Socket) error                { return nil }
func (p *fakePoller) EnableReadNotification(socket.Socket, bool, time.Duration) error {
	return nil
}
func (p *fakePoller) EnableWriteNotification(sock socket.Socket, enable bool, _ time.Duration) error {
	p.mu.Lock()
	p.writeOn[sock.FD()] = enable
	p.mu.Unlock()
	return nil
}
func (p *fakePoller) Stop() error { return nil }

type fakeTaskManager struct{}

func (fakeTaskManager) RegisterTask(taskmgr.Task, time.Time) {}
func (fakeTaskManager) Stop()                                {}

// fakeBindTransport completes its handshake in a single step and answers
// whatever bind id bindReply names.
type fakeBindTransport struct {
	bindReply int
}

func (t *fakeBindTransport) HandShake(step int, in *message.Buffer, cd *transport.ChannelData) (*message.Buffer, status.Status) {
	return nil, status.Done()
}
func (t *fakeBindTransport) GetMessage(buf *message.Buffer, sock socket.Socket) status.Status {
	return status.Done()
}
func (t *fakeBindTransport) Disconnect(cd *transport.ChannelData, subStreamNum int) {}
func (t *fakeBindTransport) IsStreamTTLElapsed(idleFor time.Duration, cd *transport.ChannelData) bool {
	return false
}
func (t *fakeBindTransport) BuildBindRequest(cd *transport.ChannelData, tempStreamNum int) *message.Buffer {
	return message.New([]byte("bind"))
}
func (t *fakeBindTransport) ParseBindResponse(resp *message.Buffer) (int, status.Status) {
	return t.bindReply, status.Done()
}

// createdStream lets a test observe and drive a sub-stream that
// PhysicalConnection created internally via its StreamFactory.
type createdStream struct {
	s    *stream.Stream
	sock *fakeSocket
}

func newTestPC(t *testing.T, bindReply int) (pc *PhysicalConnection, primary *stream.Stream, created chan createdStream) {
	t.Helper()
	endpoint := stream.Endpoint{Host: "example.org", Port: 1094}
	chanData := &transport.ChannelData{}
	tr := &fakeBindTransport{bindReply: bindReply}
	p := newFakePoller()
	tm := fakeTaskManager{}
	created = make(chan createdStream, 8)

	nextFD := 1
	primary = stream.New(endpoint, 0, newFakeSocket(nextFD), p, tm, tr, chanData)
	nextFD++

	factory := func(n int) (*stream.Stream, error) {
		sock := newFakeSocket(nextFD)
		nextFD++
		s := stream.New(endpoint, n, sock, p, tm, tr, chanData, stream.WithIncomingQueue(primary.IncomingQueue()))
		created <- createdStream{s: s, sock: sock}
		return s, nil
	}
	pc = NewPhysicalConnection(endpoint, primary, chanData, factory).WithTransport(tr)
	return pc, primary, created
}

// waitForState polls until s reaches want or the deadline passes, failing
// the test otherwise. Establishing a sub-stream is asynchronous by design
// (it only makes progress in response to simulated poller events), so a
// driving goroutine has no other signal to wait on.
func waitForState(t *testing.T, s *stream.Stream, want stream.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("stream never reached state %v, stuck at %v", want, s.State())
}

// driveBindRoundTrip plays the part of the poller and the server for a
// single sub-stream establishment: it completes the (one-step, per
// fakeBindTransport) handshake and then delivers a fabricated bind response.
func driveBindRoundTrip(t *testing.T, created chan createdStream) {
	t.Helper()
	var cs createdStream
	select {
	case cs = <-created:
	case <-time.After(2 * time.Second):
		t.Fatalf("PhysicalConnection never asked its factory for a new stream")
	}

	waitForState(t, cs.s, stream.StateConnecting)
	cs.s.Event(poller.EventReadyToWrite, cs.sock) // completes the handshake
	waitForState(t, cs.s, stream.StateConnected)

	// Give bindPendingStream a moment to register its response handler and
	// queue the bind request before we flush the write and fabricate the
	// server's answer.
	time.Sleep(10 * time.Millisecond)
	cs.s.Event(poller.EventReadyToWrite, cs.sock) // flushes the bind request
	cs.s.Event(poller.EventReadyToRead, cs.sock)   // delivers the bind response
}

// TestAddParallelStreamPromotesToAssignedID exercises the whole
// connect+handshake+bind sequence and checks the sub-stream ends up
// reachable under the id the (fake) server assigned it, not under whatever
// temporary slot it used during establishment.
func TestAddParallelStreamPromotesToAssignedID(t *testing.T) {
	pc, _, created := newTestPC(t, 7)

	errCh := make(chan error, 1)
	go func() { errCh <- pc.AddParallelStream() }()

	driveBindRoundTrip(t, created)

	if err := <-errCh; err != nil {
		t.Fatalf("AddParallelStream: %v", err)
	}
	if pc.SubStreamCount() != 1 {
		t.Fatalf("SubStreamCount = %d, want 1", pc.SubStreamCount())
	}

	pc.mu.Lock()
	idx := 7 - 1
	ok := idx < len(pc.subs) && pc.subs[idx] != nil
	pc.mu.Unlock()
	if !ok {
		t.Fatalf("sub-stream should be filed under its server-assigned id (7)")
	}
}

// TestSplitReadRequestCoversExactlyTheRequestedRange is property P6: for any
// (offset, length, streamCount) the union of chunks is exactly
// [offset, offset+length) with no overlap and no gap. Sub-streams are
// injected directly into the slot table rather than established for real,
// since SplitReadRequest only ever asks whether a slot is occupied.
func TestSplitReadRequestCoversExactlyTheRequestedRange(t *testing.T) {
	cfg := &Config{SplitSize: 100}
	endpoint := stream.Endpoint{Host: "example.org", Port: 1094}
	tr := &fakeBindTransport{bindReply: 1}
	chanData := &transport.ChannelData{}

	cases := []struct {
		offset, length int64
		subs           int
	}{
		{0, 1000, 0},
		{0, 1000, 3},
		{500, 1, 5},
		{10, 999, 4},
	}

	for _, c := range cases {
		pc, _, _ := newTestPC(t, 1)
		pc.mu.Lock()
		for i := 0; i < c.subs; i++ {
			pc.subs = append(pc.subs, stream.New(endpoint, i+1, newFakeSocket(100+i), newFakePoller(), fakeTaskManager{}, tr, chanData))
		}
		pc.mu.Unlock()

		chunks := pc.SplitReadRequest(cfg, c.offset, c.length)

		pos := c.offset
		for i, ck := range chunks {
			if ck.Offset != pos {
				t.Fatalf("case %+v chunk %d starts at %d, want %d (gap or overlap)", c, i, ck.Offset, pos)
			}
			if ck.Length <= 0 {
				t.Fatalf("case %+v chunk %d has non-positive length %d", c, i, ck.Length)
			}
			pos += ck.Length
		}
		if pos != c.offset+c.length {
			t.Fatalf("case %+v chunks cover up to %d, want %d", c, pos, c.offset+c.length)
		}
	}
}

// TestSplitReadRequestZeroLengthReadStillReturnsOneChunk covers the
// degenerate zero-length read: the caller still gets exactly one addressed
// chunk back rather than an empty slice.
func TestSplitReadRequestZeroLengthReadStillReturnsOneChunk(t *testing.T) {
	pc, _, _ := newTestPC(t, 1)
	chunks := pc.SplitReadRequest(DefaultConfig(), 0, 0)
	if len(chunks) != 1 || chunks[0].Length != 0 {
		t.Fatalf("zero-length read should return a single empty chunk, got %+v", chunks)
	}
}

// TestSplitReadRequestSingleStreamNeverSplits covers the baseline: with no
// sub-streams established, every read is addressed to the primary alone.
func TestSplitReadRequestSingleStreamNeverSplits(t *testing.T) {
	pc, _, _ := newTestPC(t, 1)

	chunks := pc.SplitReadRequest(DefaultConfig(), 42, 10_000_000)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk with no sub-streams established, got %d", len(chunks))
	}
	if chunks[0].StreamNum != 0 {
		t.Fatalf("the only chunk should be addressed to the primary, got stream %d", chunks[0].StreamNum)
	}
}

// TestBindDoesNotDisturbUnrelatedIncomingWaiters: a sub-stream bind round
// trip is routed to its own dedicated waiter on the shared incoming queue
// and must not answer, or otherwise disturb, an unrelated response some
// other caller is already waiting for.
func TestBindDoesNotDisturbUnrelatedIncomingWaiters(t *testing.T) {
	pc, primary, created := newTestPC(t, 3)

	var unrelatedCalled bool
	primary.IncomingQueue().PushHandler(stream.IncomingHandlerFunc(func(msg *message.Buffer, st status.Status) {
		unrelatedCalled = true
	}), time.Time{})

	errCh := make(chan error, 1)
	go func() { errCh <- pc.AddParallelStream() }()

	driveBindRoundTrip(t, created)

	if err := <-errCh; err != nil {
		t.Fatalf("AddParallelStream: %v", err)
	}
	if unrelatedCalled {
		t.Fatalf("bind must not have dispatched to an unrelated waiter on the shared incoming queue")
	}
	if primary.IncomingQueue().Empty() {
		t.Fatalf("the unrelated waiter should still be pending after the bind completes")
	}
}
