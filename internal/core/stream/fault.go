package stream

import (
	"github.com/juztas/xrootd/internal/core/status"
)

// handleStreamFault is the single place a broken connection gets torn down
// and either scheduled for another attempt or pushed into the terminal
// Error state. Caller must hold mu.
func (s *Stream) handleStreamFault(st status.Status) {
	logger.Warn("stream fault", "endpoint", s.endpoint, "stream", s.streamNum, "severity", st.Severity, "code", st.Code)
	s.metrics.Fault(s.endpoint.String(), st.Code.String())

	_ = s.poller.RemoveSocket(s.sock)
	_ = s.sock.Close()
	s.currentOut = nil
	s.incoming = nil
	s.transport.Disconnect(s.chanData, s.streamNum)

	if !st.IsFatal() && s.connectionCount < s.cfg.ConnectionRetry {
		// The socket backing the failed attempt is already gone; mark the
		// stream idle so the next connect() (immediate or scheduled) is not
		// short-circuited by the "already connecting" guard.
		s.state = StateDisconnected
		newAttemptAt := s.connectionInitTime.Add(s.cfg.ConnectionWindow)
		now := s.clk.Now()
		if !newAttemptAt.After(now) {
			s.connect()
		} else {
			s.taskmgr.RegisterTask(&ConnectorTask{stream: s}, newAttemptAt)
		}
		return
	}

	s.state = StateError
	s.lastStreamError = st
	s.errorTime = s.clk.Now()
	if s.streamNum == 0 && s.incoming0 != nil {
		s.incoming0.FailAll(st)
	}
	s.failOutgoingHandlers(st)

	if s.onFault != nil {
		onFault := s.onFault
		go onFault(s, st)
	}
}

// failOutgoingHandlers invokes every queued outbound handler with st and
// empties both outbound queues. Caller must hold mu.
func (s *Stream) failOutgoingHandlers(st status.Status) {
	for _, e := range s.outQueue.drainAll() {
		if e.Handler != nil {
			e.Handler.HandleStatus(st)
		}
	}
	for _, e := range s.outQueueConnect.drainAll() {
		if e.Handler != nil {
			e.Handler.HandleStatus(st)
		}
	}
}
