package stream

import (
	"time"

	"github.com/juztas/xrootd/internal/core/status"
)

// Tick is driven by the owner roughly every TimeoutResolution. It times out
// any queued-but-not-yet-started outbound entry that has outlived its
// deadline, and — for stream 0 — any response waiter that never got an
// answer. It never touches currentOut: a message already being written is
// never abandoned mid-flight, only messages still waiting their turn can be.
func (s *Stream) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := status.Err(status.CodeSocketTimeout, nil)
	for _, e := range s.outQueue.drainExpired(now, s.currentOut) {
		if e.Handler != nil {
			e.Handler.HandleStatus(st)
		}
	}
	for _, e := range s.outQueueConnect.drainExpired(now, s.currentOut) {
		if e.Handler != nil {
			e.Handler.HandleStatus(st)
		}
	}
	if s.streamNum == 0 && s.incoming0 != nil {
		s.incoming0.Tick(now, st)
	}
}

// handleConnectingTimeout fires when the connection window elapses before
// the socket ever became verifiably connected. Caller must hold mu.
func (s *Stream) handleConnectingTimeout() {
	if s.clk.Now().Sub(s.connectionInitTime) < s.cfg.ConnectionWindow {
		return
	}
	for _, e := range s.outQueueConnect.drainAll() {
		if e.Handler != nil {
			e.Handler.HandleStatus(status.Err(status.CodeConnectionError, nil))
		}
	}
	s.handleStreamFault(status.Err(status.CodeConnectionError, nil))
}

// handleReadTimeout and handleWriteTimeout both defer to the transport's
// notion of how long a stream may sit idle; they do not themselves carry a
// fixed timeout value, because "idle too long" is a protocol judgement, not
// a connection-layer one. Caller must hold mu.
func (s *Stream) handleReadTimeout() {
	s.checkStreamTTL()
}

func (s *Stream) handleWriteTimeout() {
	s.checkStreamTTL()
}

func (s *Stream) checkStreamTTL() {
	idleFor := s.clk.Now().Sub(s.lastActivity)
	if s.transport.IsStreamTTLElapsed(idleFor, s.chanData) {
		s.disconnect(true)
	}
}
