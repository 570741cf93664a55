// Package multistream bonds several TCP connections (sub-streams) onto one
// logical session, so a single client can push more bytes in flight than
// one socket's window allows. It establishes sub-streams by handshaking
// them as temporary, unbound connections and then asking the server to bind
// each one to the primary session; once bound, read requests can be split
// across whichever sub-streams are currently alive.
package multistream

import (
	"sync"
	"time"

	"github.com/juztas/xrootd/internal/core/metrics"
	"github.com/juztas/xrootd/internal/core/status"
	"github.com/juztas/xrootd/internal/core/stream"
	"github.com/juztas/xrootd/internal/core/transport"
	"github.com/juztas/xrootd/pkg/lib/log"
)

var logger = log.Logger("multistream")

// StreamFactory builds a fresh, not-yet-connected Stream for sub-stream
// number n against the same endpoint and protocol stack as the primary.
// PhysicalConnection calls it once per sub-stream it tries to establish.
type StreamFactory func(n int) (*stream.Stream, error)

// PhysicalConnection is the full set of TCP connections — one primary plus
// zero or more bonded sub-streams — that together serve one logical session
// against one server. Every sub-stream shares the primary's ChannelData
// (session id, protocol version), which is how the server recognizes a bind
// request as belonging to an existing session rather than a new one.
type PhysicalConnection struct {
	mu sync.Mutex

	endpoint  stream.Endpoint
	primary   *stream.Stream
	chanData  *transport.ChannelData
	newStream StreamFactory
	tr        transport.Transport

	// subs holds bound sub-streams indexed by (assignedID - 1); a nil
	// entry marks a slot whose sub-stream has since died and not yet been
	// replaced.
	subs []*stream.Stream
	// rr is the round-robin cursor used by nextParallelStream.
	rr int

	metrics *metrics.Registry
}

// WithMetrics installs a Registry the PhysicalConnection reports its live
// sub-stream count to. Omitting it leaves the field nil, which every
// Registry method tolerates.
func (pc *PhysicalConnection) WithMetrics(reg *metrics.Registry) *PhysicalConnection {
	pc.mu.Lock()
	pc.metrics = reg
	pc.mu.Unlock()
	return pc
}

// NewPhysicalConnection wires together the primary stream and the factory
// used to mint additional sub-streams later.
func NewPhysicalConnection(endpoint stream.Endpoint, primary *stream.Stream, chanData *transport.ChannelData, factory StreamFactory) *PhysicalConnection {
	return &PhysicalConnection{
		endpoint:  endpoint,
		primary:   primary,
		chanData:  chanData,
		newStream: factory,
	}
}

// Primary returns the session's primary stream (stream 0).
func (pc *PhysicalConnection) Primary() *stream.Stream {
	return pc.primary
}

// SubStreamCount reports how many sub-stream slots currently hold a live
// stream, i.e. the parallelism actually available right now.
func (pc *PhysicalConnection) SubStreamCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	n := 0
	for _, s := range pc.subs {
		if s != nil {
			n++
		}
	}
	return n
}

// streamCountForSplit returns SubStreamCount()+1 (the primary always
// counts), the denominator SplitReadRequest uses.
func (pc *PhysicalConnection) streamCountForSplit() int {
	return pc.SubStreamCount() + 1
}

// addSubStream installs s at the slot for assignedID, growing the slot
// table if needed, and re-syncs it so every reader sees the new layout
// atomically rather than mid-update.
func (pc *PhysicalConnection) addSubStream(assignedID int, s *stream.Stream) {
	pc.mu.Lock()
	idx := assignedID - 1
	for len(pc.subs) <= idx {
		pc.subs = append(pc.subs, nil)
	}
	pc.subs[idx] = s
	pc.reinitFDTable()
	pc.mu.Unlock()

	s.SetFaultHandler(func(*stream.Stream, status.Status) {
		pc.removeSubStream(assignedID)
	})
}

// removeSubStream clears the slot for assignedID, e.g. after that
// sub-stream's fault handler gave up on reconnecting.
func (pc *PhysicalConnection) removeSubStream(assignedID int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	idx := assignedID - 1
	if idx >= 0 && idx < len(pc.subs) {
		pc.subs[idx] = nil
	}
	pc.reinitFDTable()
}

// Tick drives timeout processing for the primary stream and every live
// sub-stream.
func (pc *PhysicalConnection) Tick(now time.Time) {
	pc.primary.Tick(now)
	pc.mu.Lock()
	live := make([]*stream.Stream, 0, len(pc.subs))
	live = append(live, pc.subs...)
	pc.mu.Unlock()
	for _, s := range live {
		if s != nil {
			s.Tick(now)
		}
	}
}

// reinitFDTable re-derives whatever bookkeeping depends on which slots are
// currently occupied. Caller must hold mu. Kept as its own step (rather than
// folded into add/removeSubStream) because the original slot-table
// invariant is "every mutation is immediately followed by a full resync",
// not "each mutation incrementally patches derived state" — the two are
// equivalent here, but resyncing explicitly is what a reader expects to see
// named after the operation that actually requires it (SplitReadRequest's
// round robin depends on a compacted, stable ordering).
func (pc *PhysicalConnection) reinitFDTable() {
	live := 0
	for _, s := range pc.subs {
		if s != nil {
			live++
		}
	}
	if pc.rr >= live+1 {
		pc.rr = 0
	}
	pc.metrics.SetSubStreams(pc.endpoint.String(), live)
	logger.Debug("sub-stream table resynced", "endpoint", pc.endpoint, "live", live)
}
