package multistream

import (
	"fmt"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/stream"
	"github.com/juztas/xrootd/internal/core/transport"
)

// tempStreamNum is the sentinel sub-stream number used for a connection
// that has completed its own handshake but has not yet been told by the
// server which real sub-stream id it was granted.
const tempStreamNum = -1

// bindTimeout bounds how long EstablishParallelStreams waits for one
// sub-stream's connect+handshake+bind round trip before giving up on it.
const bindTimeout = 30 * time.Second

// ReadChunk is one piece of a read request after SplitReadRequest has
// divided it across the sub-streams currently available.
type ReadChunk struct {
	Offset    int64
	Length    int64
	StreamNum int
}

// WithTransport installs the Transport used to build and parse bind
// requests. It must be called before EstablishParallelStreams.
func (pc *PhysicalConnection) WithTransport(tr transport.Transport) *PhysicalConnection {
	pc.mu.Lock()
	pc.tr = tr
	pc.mu.Unlock()
	return pc
}

// EstablishParallelStreams tries to bring up to cfg.MaxStreams sub-streams,
// stopping at the first one that fails to establish — a server that
// rejected the very first bind attempt is unlikely to accept a second.
func (pc *PhysicalConnection) EstablishParallelStreams(cfg *Config) error {
	for i := 0; i < cfg.MaxStreams; i++ {
		if err := pc.AddParallelStream(); err != nil {
			return fmt.Errorf("multistream: establishing sub-stream %d: %w", i+1, err)
		}
	}
	return nil
}

// AddParallelStream brings up exactly one more sub-stream: connect and
// handshake it as an ordinary, session-less connection, then ask the server
// to bind it into the existing session. On any failure the half-established
// connection is torn down and the slot table is left untouched.
func (pc *PhysicalConnection) AddParallelStream() error {
	temp, err := pc.newStream(tempStreamNum)
	if err != nil {
		return fmt.Errorf("multistream: create sub-stream: %w", err)
	}
	if st := temp.Connect(); !st.IsOK() {
		pc.RemoveParallelStream(temp)
		return fmt.Errorf("multistream: connect sub-stream: %w", st)
	}

	assignedID, err := pc.bindPendingStream(temp)
	if err != nil {
		pc.RemoveParallelStream(temp)
		return err
	}

	pc.addSubStream(assignedID, temp)
	logger.Info("sub-stream established", "endpoint", pc.endpoint, "assigned", assignedID)
	return nil
}

// RemoveParallelStream tears a sub-stream down unconditionally, used both
// when establishment fails and when a live sub-stream is being retired.
func (pc *PhysicalConnection) RemoveParallelStream(s *stream.Stream) {
	s.Disconnect(true)
}

// bindPendingStream sends the bind request over the freshly handshaken
// sub-stream and waits for the server's answer, converting the stream's
// callback-driven send/receive into a single blocking round trip — bringing
// up a sub-stream is a rare, one-shot event, so there is nothing to be
// gained from keeping it non-blocking. It only ever reads pc.chanData's
// session id to build the request and never writes to it, so a concurrent
// primary handshake (which does write pc.chanData) can never be corrupted
// by an in-flight bind.
func (pc *PhysicalConnection) bindPendingStream(temp *stream.Stream) (int, error) {
	pc.mu.Lock()
	tr := pc.tr
	chanData := pc.chanData
	pc.mu.Unlock()
	if tr == nil {
		return 0, fmt.Errorf("multistream: no transport configured")
	}

	respCh := make(chan *message.Buffer, 1)
	failCh := make(chan status.Status, 1)
	deadline := time.Now().Add(bindTimeout)

	temp.IncomingQueue().PushHandler(stream.IncomingHandlerFunc(func(msg *message.Buffer, st status.Status) {
		if !st.IsOK() {
			failCh <- st
			return
		}
		respCh <- msg
	}), deadline)

	req := tr.BuildBindRequest(chanData, tempStreamNum)
	sendSt := temp.QueueOut(req, stream.OutgoingHandlerFunc(func(st status.Status) {
		if !st.IsOK() {
			select {
			case failCh <- st:
			default:
			}
		}
	}), bindTimeout)
	if !sendSt.IsOK() {
		return 0, fmt.Errorf("multistream: queue bind request: %w", sendSt)
	}

	select {
	case msg := <-respCh:
		assignedID, pst := tr.ParseBindResponse(msg)
		if !pst.IsOK() {
			return 0, fmt.Errorf("multistream: parse bind response: %w", pst)
		}
		return assignedID, nil
	case st := <-failCh:
		return 0, fmt.Errorf("multistream: bind failed: %w", st)
	case <-time.After(bindTimeout):
		return 0, fmt.Errorf("multistream: bind timed out")
	}
}

// SplitReadRequest divides one read of length bytes starting at offset into
// chunks no smaller than cfg.SplitSize (except the final chunk, which holds
// whatever remains and may be smaller), spreading them round-robin across
// the primary stream and every currently live sub-stream. With no
// sub-streams established it always returns a single chunk addressed to
// the primary.
func (pc *PhysicalConnection) SplitReadRequest(cfg *Config, offset, length int64) []ReadChunk {
	streamCount := pc.streamCountForSplit()
	if streamCount <= 1 || length <= 0 {
		return []ReadChunk{{Offset: offset, Length: length, StreamNum: pc.nextParallelStream()}}
	}

	chunkSize := (length + int64(streamCount) - 1) / int64(streamCount)
	if chunkSize < int64(cfg.SplitSize) {
		chunkSize = int64(cfg.SplitSize)
	}

	var chunks []ReadChunk
	for remaining, pos := length, offset; remaining > 0; {
		n := chunkSize
		if n > remaining {
			n = remaining
		}
		chunks = append(chunks, ReadChunk{Offset: pos, Length: n, StreamNum: pc.nextParallelStream()})
		pos += n
		remaining -= n
	}
	return chunks
}

// nextParallelStream round-robins across the primary (stream 0) and every
// currently live sub-stream.
func (pc *PhysicalConnection) nextParallelStream() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	live := []int{0}
	for idx, s := range pc.subs {
		if s != nil {
			live = append(live, idx+1)
		}
	}
	chosen := live[pc.rr%len(live)]
	pc.rr++
	return chosen
}
