package stream

import (
	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
)

// connectingReadyToWrite fires when the async connect's completion can
// finally be verified (the socket became writable). It checks SO_ERROR,
// then drives the transport handshake forward until it stops asking to be
// retried immediately. Caller must hold mu.
func (s *Stream) connectingReadyToWrite() {
	sockErr, err := s.sock.GetSockOpt()
	if err != nil {
		s.handleStreamFault(status.Fatal(status.CodeSocketOptError, err))
		return
	}
	if sockErr != 0 {
		s.handleStreamFault(status.Err(status.CodeConnectionError, nil))
		return
	}
	s.sock.SetStatus(socket.StatusConnected)

	var in *message.Buffer
	var st status.Status
	for {
		var out *message.Buffer
		out, st = s.transport.HandShake(s.handshakeStep, in, s.chanData)
		s.handshakeStep++
		in = nil
		if !st.IsOK() {
			s.handleStreamFault(st)
			return
		}
		if out != nil {
			s.outQueueConnect.push(&OutboundEntry{Msg: out, Owned: true})
		}
		if !st.IsRetry() {
			break
		}
	}

	if err := s.poller.EnableReadNotification(s.sock, true, s.cfg.ConnectionWindow); err != nil {
		s.handleStreamFault(status.Fatal(status.CodePollerError, err))
		return
	}

	if st.IsDone() {
		s.connectionCount = 0
		s.state = StateConnected
		s.handshakeStep = 0
		logger.Info("handshake complete", "endpoint", s.endpoint, "stream", s.streamNum)
	}

	s.writeMessageLocked(&s.outQueueConnect)
}

// connectingReadyToRead fires while still handshaking and data has arrived.
// It feeds the fully framed message back into the transport's handshake
// state machine for another step.
func (s *Stream) connectingReadyToRead() {
	st := s.readMessageLocked()
	if !st.IsOK() {
		s.handleStreamFault(st)
		return
	}
	if !st.IsDone() {
		return // frame still incomplete, wait for more data
	}
	in := s.incoming
	s.incoming = nil

	out, hst := s.transport.HandShake(s.handshakeStep, in, s.chanData)
	s.handshakeStep++
	if !hst.IsOK() {
		s.handleStreamFault(hst)
		return
	}
	if out != nil {
		s.outQueueConnect.push(&OutboundEntry{Msg: out, Owned: true})
		if err := s.poller.EnableWriteNotification(s.sock, true, s.cfg.ConnectionWindow); err != nil {
			s.handleStreamFault(status.Fatal(status.CodePollerError, err))
			return
		}
	}
	if hst.IsDone() {
		s.connectionCount = 0
		s.state = StateConnected
		s.handshakeStep = 0
		logger.Info("handshake complete", "endpoint", s.endpoint, "stream", s.streamNum)
	}
}
