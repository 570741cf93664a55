// Package stream implements the per-TCP-connection state machine that
// drives one logical connection attempt through async connect, transport
// handshake, and multiplexed send/receive, recovering from faults through
// bounded retry and scheduled reconnection.
package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/metrics"
	"github.com/juztas/xrootd/internal/core/poller"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/taskmgr"
	"github.com/juztas/xrootd/internal/core/transport"
	"github.com/juztas/xrootd/pkg/lib/log"
)

var logger = log.Logger("stream")

// State enumerates the phases a Stream moves through. There is no direct
// transition from Error back to Connecting: a stream that has exhausted its
// retry budget stays Error until StreamErrorWindow has elapsed, after which
// the next QueueOut moves it to Disconnected and starts a fresh attempt.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Endpoint names the remote host this stream dials.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Stream is a single TCP connection's worth of state machine. Every mutable
// field below is guarded by mu; callers never need a finer-grained lock
// because every externally triggered entry point (Event, QueueOut, Tick,
// Disconnect) acquires mu once for the duration of its work, mirroring how
// the original C++ client takes one scoped lock per callback. The one
// exception is the Send/Recv syscall in io.go, around which mu is released
// and then re-taken.
type Stream struct {
	mu sync.Mutex

	cfg       *Config
	clk       clock.Clock
	endpoint  Endpoint
	streamNum int

	sock      socket.Socket
	poller    poller.Poller
	taskmgr   taskmgr.TaskManager
	transport transport.Transport
	chanData  *transport.ChannelData

	state State

	outQueueConnect outQueue
	outQueue        outQueue
	currentOut      *OutboundEntry

	incoming *message.Buffer
	incoming0 *IncomingQueue // stream 0's queue, shared by sub-streams via WithIncomingQueue

	handshakeStep int

	connectionInitTime time.Time
	connectionCount    int
	lastActivity       time.Time

	lastStreamError status.Status
	errorTime       time.Time

	// onFault is invoked (outside the lock) after a fault has put the stream
	// into the Error state, letting an owning MultiStream react to a
	// sub-stream's death, e.g. by
	// re-synchronizing its slot table.
	onFault func(*Stream, status.Status)

	// metrics is nil unless WithMetrics was passed to New; every metrics.Registry
	// method tolerates a nil receiver, so call sites never need a nil check.
	metrics *metrics.Registry
}

// New constructs a Stream for the given endpoint and sub-stream number.
// streamNum 0 is the primary stream and owns the shared response queue;
// sub-streams (streamNum > 0) are created by MultiStream with
// WithIncomingQueue pointing at stream 0's queue.
func New(endpoint Endpoint, streamNum int, sock socket.Socket, p poller.Poller, tm taskmgr.TaskManager, tr transport.Transport, chanData *transport.ChannelData, opts ...Option) *Stream {
	s := &Stream{
		cfg:       DefaultConfig(),
		clk:       clock.New(),
		endpoint:  endpoint,
		streamNum: streamNum,
		sock:      sock,
		poller:    p,
		taskmgr:   tm,
		transport: tr,
		chanData:  chanData,
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.incoming0 == nil && streamNum == 0 {
		s.incoming0 = NewIncomingQueue()
	}
	return s
}

// SetClock overrides the stream's clock, for deterministic tests.
func (s *Stream) SetClock(clk clock.Clock) {
	s.mu.Lock()
	s.clk = clk
	s.mu.Unlock()
}

// SetFaultHandler installs a callback invoked after a fault puts the stream
// into the Error state; faults that only schedule a retry do not invoke it.
func (s *Stream) SetFaultHandler(f func(*Stream, status.Status)) {
	s.mu.Lock()
	s.onFault = f
	s.mu.Unlock()
}

// State returns the stream's current phase.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamNum returns the sub-stream number this Stream represents within its
// physical connection (0 is primary).
func (s *Stream) StreamNum() int { return s.streamNum }

// ConnectionCount returns how many consecutive connection attempts have
// been made since the last successful handshake.
func (s *Stream) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionCount
}

// LastError returns the status that put the stream into its terminal Error
// state, or a zero Status if it has never errored.
func (s *Stream) LastError() status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStreamError
}

// IncomingQueue exposes the shared response-wait queue. Sub-streams share
// stream 0's instance; only stream 0 ever actually owns one.
func (s *Stream) IncomingQueue() *IncomingQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incoming0
}

// Event dispatches a poller notification to the appropriate internal
// handler based on the stream's current state. This is the single entry
// point the Poller calls back into.
func (s *Stream) Event(kind poller.EventKind, sock socket.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasConnected := s.state == StateConnected
	switch kind {
	case poller.EventReadyToWrite:
		s.lastActivity = s.clk.Now()
		switch s.state {
		case StateConnecting:
			s.connectingReadyToWrite()
		case StateConnected:
			s.connectedReadyToWrite()
		}
	case poller.EventReadyToRead:
		s.lastActivity = s.clk.Now()
		switch s.state {
		case StateConnecting:
			s.connectingReadyToRead()
		case StateConnected:
			s.connectedReadyToRead()
		}
	case poller.EventWriteTimeout:
		if s.state == StateConnecting {
			s.handleConnectingTimeout()
		} else {
			s.handleWriteTimeout()
		}
	case poller.EventReadTimeout:
		if s.state == StateConnecting {
			s.handleConnectingTimeout()
		} else {
			s.handleReadTimeout()
		}
	}

	// A handshake that completed during this event leaves messages queued
	// while connecting, or kept at the queue head across a retryable fault,
	// waiting for write notification on the main queue.
	if !wasConnected && s.state == StateConnected && !s.outQueue.empty() {
		if err := s.poller.EnableWriteNotification(s.sock, true, s.cfg.TimeoutResolution); err != nil {
			logger.Warn("enable write notification failed", "endpoint", s.endpoint, "err", err)
		}
	}
}

// CheckConnection reports whether the stream is in a state where QueueOut
// may hand it a message, kicking off a new connection attempt as a side
// effect if the stream is currently idle.
func (s *Stream) checkConnection() status.Status {
	switch s.state {
	case StateConnected, StateConnecting:
		return status.Done()
	case StateError:
		if s.clk.Now().Sub(s.errorTime) < s.cfg.StreamErrorWindow {
			return s.lastStreamError
		}
		// The error window has elapsed: give the stream another chance.
		s.state = StateDisconnected
		fallthrough
	default:
		return s.connect()
	}
}

// QueueOut enqueues msg for sending, invoking handler once it has been
// written (status Done), timed out (CodeSocketTimeout), or abandoned due to
// a fault. A zero timeout means the entry never expires on its own.
func (s *Stream) QueueOut(msg *message.Buffer, handler OutgoingHandler, timeout time.Duration) status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A stream still inside its error window rejects outright: the caller
	// already gets that status back synchronously, and CheckConnection made
	// no new attempt on its behalf, so there is nothing new to report to the
	// handler. A stream that we *did* just try (and fail) to reconnect owes
	// its handler that failure, since the caller has no other way to learn
	// this particular attempt's outcome.
	gateRejected := s.state == StateError && s.clk.Now().Sub(s.errorTime) < s.cfg.StreamErrorWindow
	st := s.checkConnection()
	if !st.IsOK() {
		if handler != nil && !gateRejected {
			handler.HandleStatus(st)
		}
		return st
	}

	wasEmpty := s.outQueue.empty() && s.currentOut == nil
	entry := &OutboundEntry{Msg: msg, Handler: handler, RequestID: uuid.New().String()}
	if timeout > 0 {
		entry.Expires = s.clk.Now().Add(timeout)
	}
	s.outQueue.push(entry)
	logger.Debug("queued outbound message", "endpoint", s.endpoint, "stream", s.streamNum, "request", entry.RequestID)
	s.metrics.SetQueueDepth(s.endpoint.String(), fmt.Sprint(s.streamNum), s.outQueue.len())

	if s.state == StateConnected && wasEmpty {
		if err := s.poller.EnableWriteNotification(s.sock, true, s.cfg.TimeoutResolution); err != nil {
			logger.Warn("enable write notification failed", "endpoint", s.endpoint, "err", err)
		}
	}
	return status.Done()
}

// connect initiates (or re-initiates) an asynchronous connection attempt.
// Caller must hold mu.
func (s *Stream) connect() status.Status {
	if s.state == StateConnecting {
		return status.Done()
	}
	s.connectionInitTime = s.clk.Now()
	s.lastActivity = s.connectionInitTime
	s.connectionCount++
	s.metrics.ConnectAttempt(s.endpoint.String(), fmt.Sprint(s.streamNum))
	if err := s.sock.Initialize(); err != nil {
		st := status.Err(status.CodeSocketError, err)
		s.state = StateError
		s.lastStreamError = st
		s.errorTime = s.clk.Now()
		return st
	}
	if err := s.sock.Connect(s.endpoint.Host, s.endpoint.Port); err != nil {
		st := status.Err(status.CodeSocketError, err)
		s.state = StateError
		s.lastStreamError = st
		s.errorTime = s.clk.Now()
		return st
	}
	if err := s.poller.AddSocket(s.sock, poller.ListenerFunc(s.Event)); err != nil {
		st := status.Fatal(status.CodePollerError, err)
		s.state = StateError
		s.lastStreamError = st
		s.errorTime = s.clk.Now()
		return st
	}
	s.state = StateConnecting
	if err := s.poller.EnableWriteNotification(s.sock, true, s.cfg.ConnectionWindow); err != nil {
		st := status.Fatal(status.CodePollerError, err)
		s.handleStreamFault(st)
		return st
	}
	s.handshakeStep = 0
	logger.Debug("connecting", "endpoint", s.endpoint, "stream", s.streamNum, "attempt", s.connectionCount)
	return status.Done()
}

// Connect is the public, lock-acquiring form of connect, used by
// ConnectorTask and by callers establishing the very first connection.
func (s *Stream) Connect() status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connect()
}

// Disconnect tears the stream down. If force is false and there is still
// outbound work queued, the call is a no-op — callers that want to guarantee
// teardown (e.g. shutdown) must pass force=true. Any error closing the
// underlying socket or removing it from the poller is returned rather than
// swallowed; the in-module callers (Session.Close,
// PhysicalConnection.RemoveParallelStream) discard it.
func (s *Stream) Disconnect(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnect(force)
}

func (s *Stream) disconnect(force bool) error {
	if !force && (!s.outQueue.empty() || s.currentOut != nil) {
		return nil
	}
	if s.state == StateDisconnected {
		return nil
	}
	var errs error
	errs = multierr.Append(errs, s.poller.RemoveSocket(s.sock))
	errs = multierr.Append(errs, s.sock.Close())
	s.currentOut = nil
	if s.streamNum == 0 && s.incoming0 != nil {
		s.incoming0.FailAll(status.Err(status.CodeStreamDisconnect, nil))
	}
	s.failOutgoingHandlers(status.Err(status.CodeStreamDisconnect, nil))
	s.transport.Disconnect(s.chanData, s.streamNum)
	s.state = StateDisconnected
	return errs
}
