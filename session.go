package xrootd

import (
	"context"
	"fmt"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/metrics"
	"github.com/juztas/xrootd/internal/core/multistream"
	"github.com/juztas/xrootd/internal/core/poller"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/stream"
	"github.com/juztas/xrootd/internal/core/taskmgr"
	"github.com/juztas/xrootd/internal/core/transport"
	"github.com/juztas/xrootd/pkg/lib/log"
)

var logger = log.Logger("xrootd")

// Session is one logical connection to a server: a primary stream plus
// whatever sub-streams get bonded onto it through EstablishParallelStreams.
// It owns the Poller and TaskManager that drive every stream belonging to
// it, so closing a Session always shuts those down too.
type Session struct {
	cfg      *Config
	endpoint stream.Endpoint

	poller  poller.Poller
	tasks   taskmgr.TaskManager
	trans   transport.Transport
	chanData *transport.ChannelData

	pc *multistream.PhysicalConnection
}

// NewSession creates a Session targeting host:port. It does not connect —
// call Connect to start the primary stream's async connect + handshake.
func NewSession(host string, port int, opts ...Option) (*Session, error) {
	o := &sessionOptions{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := poller.NewEpollPoller()
	if err != nil {
		return nil, err
	}
	tm := taskmgr.NewScheduler()
	tr := transport.NewXrootdTransport(o.cfg.ClientName)
	chanData := &transport.ChannelData{}
	endpoint := stream.Endpoint{Host: host, Port: port}

	var reg *metrics.Registry
	if o.metricsReg != nil {
		reg = metrics.NewRegistry(o.metricsReg)
	}

	primary := stream.New(endpoint, 0, socket.NewTCPSocket(), p, tm, tr, chanData,
		stream.WithConfig(o.cfg.Stream), stream.WithMetrics(reg))

	factory := func(n int) (*stream.Stream, error) {
		sock := socket.NewTCPSocket()
		s := stream.New(endpoint, n, sock, p, tm, tr, chanData,
			stream.WithConfig(o.cfg.Stream),
			stream.WithIncomingQueue(primary.IncomingQueue()),
			stream.WithMetrics(reg))
		return s, nil
	}

	pc := multistream.NewPhysicalConnection(endpoint, primary, chanData, factory).WithTransport(tr).WithMetrics(reg)

	return &Session{
		cfg:      o.cfg,
		endpoint: endpoint,
		poller:   p,
		tasks:    tm,
		trans:    tr,
		chanData: chanData,
		pc:       pc,
	}, nil
}

// Connect starts the primary stream's async connect + handshake sequence.
func (s *Session) Connect() status.Status {
	return s.pc.Primary().Connect()
}

// State returns the primary stream's current phase.
func (s *Session) State() stream.State {
	return s.pc.Primary().State()
}

// Send queues a message for delivery over the primary stream, invoking
// handler once it has been written or abandoned.
func (s *Session) Send(msg *message.Buffer, handler stream.OutgoingHandler, timeout time.Duration) status.Status {
	return s.pc.Primary().QueueOut(msg, handler, timeout)
}

// SendRequest queues msg on the primary stream and blocks until the
// matching response arrives on the shared incoming queue, the send itself
// fails, the wait times out, or ctx is canceled — turning the callback-driven
// Stream underneath into the request/response call most application code
// actually wants.
func (s *Session) SendRequest(ctx context.Context, msg *message.Buffer, timeout time.Duration) (*message.Buffer, error) {
	respCh := make(chan *message.Buffer, 1)
	failCh := make(chan status.Status, 1)

	var expires time.Time
	if timeout > 0 {
		expires = time.Now().Add(timeout)
	}
	s.pc.Primary().IncomingQueue().PushHandler(stream.IncomingHandlerFunc(func(m *message.Buffer, st status.Status) {
		if !st.IsOK() {
			failCh <- st
			return
		}
		respCh <- m
	}), expires)

	sendSt := s.pc.Primary().QueueOut(msg, stream.OutgoingHandlerFunc(func(st status.Status) {
		if !st.IsOK() {
			select {
			case failCh <- st:
			default:
			}
		}
	}), timeout)
	if !sendSt.IsOK() {
		return nil, fmt.Errorf("xrootd: queue request: %w", sendSt)
	}

	select {
	case m := <-respCh:
		return m, nil
	case st := <-failCh:
		return nil, fmt.Errorf("xrootd: request failed: %w", st)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EstablishParallelStreams brings up this Session's configured number of
// additional sub-streams, bonded to the primary's session.
func (s *Session) EstablishParallelStreams() error {
	return s.pc.EstablishParallelStreams(s.cfg.MultiStream)
}

// SplitReadRequest divides a read into chunks distributed round-robin
// across the primary stream and every currently live sub-stream.
func (s *Session) SplitReadRequest(offset, length int64) []multistream.ReadChunk {
	return s.pc.SplitReadRequest(s.cfg.MultiStream, offset, length)
}

// SubStreamCount reports how many sub-streams are currently bonded.
func (s *Session) SubStreamCount() int {
	return s.pc.SubStreamCount()
}

// Tick drives timeout processing for the primary stream and every bonded
// sub-stream. Callers should invoke it roughly every cfg.Stream.TimeoutResolution.
func (s *Session) Tick(now time.Time) {
	s.pc.Tick(now)
}

// Close tears the session down: disconnects the primary stream (discarding
// its Disconnect error), then stops the shared poller and task manager.
// Bonded sub-streams are not disconnected by Close.
func (s *Session) Close() {
	s.pc.Primary().Disconnect(true)
	s.tasks.Stop()
	if err := s.poller.Stop(); err != nil {
		logger.Warn("poller stop failed", "endpoint", s.endpoint, "err", err)
	}
}
