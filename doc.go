// Package xrootd implements the connection-stream core of a client for a
// multiplexed, handshake-based storage-server wire protocol: per-connection
// state machines that handle asynchronous connect, a pluggable multi-step
// handshake, multiplexed send/receive, parallel sub-stream bonding, and
// bounded-retry fault recovery.
//
// # Architecture
//
//	Session
//	  └── PhysicalConnection (internal/core/multistream)
//	        ├── primary Stream (internal/core/stream), sub-stream 0
//	        └── N bonded sub-streams, each its own Stream
//
// Every Stream is an independent state machine driven by three external
// collaborators, each a small interface so the state machine itself never
// touches a socket or a clock directly:
//
//   - Poller (internal/core/poller) delivers readiness and timeout events.
//   - TaskManager (internal/core/taskmgr) runs delayed reconnect attempts.
//   - Transport (internal/core/transport) owns the wire format: handshake
//     steps, frame boundaries, and stream-liveness judgement.
//
// # Quick start
//
//	sess, err := xrootd.NewSession("data.example.org", 1094)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if st := sess.Connect(); !st.IsOK() {
//		log.Fatal(st)
//	}
//
//	st := sess.Send(message.New(requestBytes), stream.OutgoingHandlerFunc(func(st status.Status) {
//		// called once the bytes have been written, or abandoned
//	}), 30*time.Second)
//
// # Concurrency
//
// A Stream's mutex is acquired once per externally triggered call (Event,
// QueueOut, Tick, Disconnect), but it is released around the underlying
// socket Send/Recv syscalls so a stalled peer never blocks a concurrent
// QueueOut/Disconnect/Tick call on the same Stream; everything else runs
// under the lock for the call's whole duration. Handlers registered through
// QueueOut or an IncomingQueue are invoked while that lock is held, so they
// must not call back into the same Stream synchronously; MultiStream's bind
// handshake works around this by handing results to buffered channels
// instead of acting on them inline.
//
// # Known limitations
//
//   - The Transport's handshake, framing, and bind wire formats implemented
//     here are a minimal, internally consistent protocol, not the exact byte
//     layout of any particular deployed server — a production Transport
//     would be swapped in for that.
//   - EpollPoller is Linux-only; no portable fallback is provided.
package xrootd
