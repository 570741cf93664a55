package stream

import (
	"fmt"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/status"
)

// connectedReadyToWrite fires once the stream is fully connected and the
// socket has room to accept more bytes. Caller must hold mu.
func (s *Stream) connectedReadyToWrite() {
	s.writeMessageLocked(&s.outQueue)
}

// connectedReadyToRead fires once the stream is fully connected and data is
// waiting to be read. A completed frame is handed to stream 0's incoming
// queue for whichever handler is waiting on a response. Caller must hold mu.
func (s *Stream) connectedReadyToRead() {
	st := s.readMessageLocked()
	if !st.IsOK() {
		s.handleStreamFault(st)
		return
	}
	if !st.IsDone() {
		return
	}
	msg := s.incoming
	s.incoming = nil
	if s.incoming0 != nil {
		s.incoming0.AddMessage(msg)
	}
}

// writeMessageLocked drains q (and s.currentOut, if a write was left
// mid-flight) onto the socket, looping through as many fully completed
// messages as the kernel send buffer allows in one go. It stops, without
// error, the instant a write would block — the next EventReadyToWrite
// resumes exactly where this left off because currentOut is preserved.
// Caller must hold mu; mu is released around the Send syscall itself so a
// stalled peer never blocks a concurrent QueueOut/Disconnect/Tick call, and
// re-taken before this returns.
func (s *Stream) writeMessageLocked(q *outQueue) {
	for {
		if s.currentOut == nil {
			s.currentOut = q.front()
			if s.currentOut == nil {
				if q.empty() {
					if err := s.poller.EnableWriteNotification(s.sock, false, 0); err != nil {
						logger.Warn("disable write notification failed", "endpoint", s.endpoint, "err", err)
					}
				}
				return
			}
			s.currentOut.Msg.Reset()
		}
		current := s.currentOut
		sock := s.sock
		buf := current.Msg.BufferAtCursor()

		s.mu.Unlock()
		n, err := sock.Send(buf)
		s.mu.Lock()

		if s.currentOut != current {
			// A concurrent Disconnect or fault already resolved this entry
			// while the lock was released; it's no longer ours to finish.
			return
		}
		if n > 0 {
			current.Msg.Advance(n)
		}
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			// Leave the entry at the head of q: a retryable fault reconnects
			// and resumes this same message from byte 0, per Reset above.
			s.currentOut = nil
			s.handleStreamFault(status.Err(status.CodeSocketError, err))
			return
		}
		if n == 0 {
			return
		}
		if !current.Msg.Done() {
			continue
		}
		done := q.popFront()
		s.currentOut = nil
		logger.Debug("wrote outbound message", "endpoint", s.endpoint, "stream", s.streamNum, "request", done.RequestID)
		s.metrics.SetQueueDepth(s.endpoint.String(), fmt.Sprint(s.streamNum), q.len())
		if done.Handler != nil {
			done.Handler.HandleStatus(status.Done())
		}
	}
}

// readMessageLocked pulls whatever bytes are currently available into the
// in-flight incoming buffer and asks the transport whether a full frame has
// accumulated yet. Caller must hold mu; mu is released around the Recv
// syscall inside GetMessage for the same reason writeMessageLocked releases
// it around Send, and re-taken before this returns. If a concurrent fault or
// disconnect discarded the in-flight buffer while unlocked, the read is
// reported as still-incomplete rather than acted on.
func (s *Stream) readMessageLocked() status.Status {
	if s.incoming == nil {
		s.incoming = message.NewIncoming()
	}
	buf := s.incoming
	sock := s.sock
	tr := s.transport

	s.mu.Unlock()
	st := tr.GetMessage(buf, sock)
	s.mu.Lock()

	if s.incoming != buf {
		return status.Continue()
	}
	return st
}

func isWouldBlock(err error) bool {
	type temporary interface{ Temporary() bool }
	t, ok := err.(temporary)
	return ok && t.Temporary()
}
