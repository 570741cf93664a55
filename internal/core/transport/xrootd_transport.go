package transport

import (
	"encoding/binary"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
)

// headerSize is the fixed frame header: 2 bytes stream id, 2 bytes
// request/response kind, 4 bytes big-endian body length.
const headerSize = 8

const (
	kindHandshakeHello = uint16(1)
	kindHandshakeResp  = uint16(2)
	kindBindRequest    = uint16(3)
	kindBindResponse   = uint16(4)
	kindData           = uint16(5)
)

// streamTTL is how long a stream may sit idle before the protocol layer
// considers it worth tearing down; the stream is then Disconnected and the
// next QueueOut reconnects it.
const streamTTL = 10 * time.Minute

// XrootdTransport is the concrete Transport plug-in for the storage-server
// wire protocol this client speaks. The handshake is one round trip in two
// steps: the client sends a hello, the server answers with its protocol version and a
// session id, and the handshake is done — no login/auth round trip is
// modeled, matching the narrow connection-stream scope this package covers.
type XrootdTransport struct {
	clientName string
}

// NewXrootdTransport constructs a transport that identifies itself as
// clientName during the handshake hello.
func NewXrootdTransport(clientName string) *XrootdTransport {
	return &XrootdTransport{clientName: clientName}
}

// HandShake implements the two-step sequence: step 0 emits a hello and asks
// to wait for the network (Continue); step 1 consumes the server's reply and
// completes (Done).
func (t *XrootdTransport) HandShake(step int, in *message.Buffer, cd *ChannelData) (*message.Buffer, status.Status) {
	switch step {
	case 0:
		body := []byte(t.clientName)
		out := message.New(frame(kindHandshakeHello, 0, body))
		return out, status.Continue()
	case 1:
		if in == nil {
			return nil, status.Err(status.CodeAuthError, nil)
		}
		kind, _, body, ok := unframe(in.Bytes())
		if !ok || kind != kindHandshakeResp || len(body) < 20 {
			return nil, status.Err(status.CodeAuthError, nil)
		}
		cd.ProtocolVersion = binary.BigEndian.Uint32(body[0:4])
		copy(cd.SessionID[:], body[4:20])
		cd.LastActivity = time.Now()
		return nil, status.Done()
	default:
		return nil, status.Err(status.CodeAuthError, nil)
	}
}

// GetMessage reports Done without reading if buf already holds a full frame;
// otherwise it reads once from sock and appends whatever arrived to buf, then
// reports whether a full frame (header + body) has now been collected. One
// call corresponds to one ReadyToRead notification; a frame spanning
// several TCP segments takes several calls to complete, exactly mirroring
// how the event loop will keep re-invoking it as more data arrives.
func (t *XrootdTransport) GetMessage(buf *message.Buffer, sock socket.Socket) status.Status {
	if have := buf.Size(); have >= headerSize {
		bodyLen := int(binary.BigEndian.Uint32(buf.Bytes()[4:8]))
		if have >= headerSize+bodyLen {
			return status.Done()
		}
	}

	tmp := make([]byte, 4096)
	n, err := sock.Recv(tmp)
	if n > 0 {
		buf.Append(tmp[:n])
	}
	if err != nil {
		if isWouldBlock(err) {
			return status.Continue()
		}
		return status.Err(status.CodeSocketError, err)
	}
	if n == 0 {
		return status.Err(status.CodeStreamDisconnect, nil)
	}

	if have := buf.Size(); have >= headerSize {
		bodyLen := int(binary.BigEndian.Uint32(buf.Bytes()[4:8]))
		if have >= headerSize+bodyLen {
			return status.Done()
		}
	}
	return status.Continue()
}

// Disconnect has nothing protocol-specific to release in this minimal
// implementation; it exists to satisfy the interface and as the hook a
// richer protocol (e.g. one tracking per-substream request ids) would use.
func (t *XrootdTransport) Disconnect(cd *ChannelData, subStreamNum int) {}

// IsStreamTTLElapsed reports whether a stream has been idle long enough that
// it is no longer worth keeping open.
func (t *XrootdTransport) IsStreamTTLElapsed(idleFor time.Duration, cd *ChannelData) bool {
	return idleFor >= streamTTL
}

// BuildBindRequest constructs the request that asks the server to bind a
// freshly handshaken temporary sub-stream to the session identified by
// cd.SessionID.
func (t *XrootdTransport) BuildBindRequest(cd *ChannelData, tempStreamNum int) *message.Buffer {
	body := make([]byte, 18)
	copy(body[0:16], cd.SessionID[:])
	binary.BigEndian.PutUint16(body[16:18], uint16(tempStreamNum))
	return message.New(frame(kindBindRequest, 0, body))
}

// ParseBindResponse extracts the server-assigned sub-stream id from the
// server's reply to a bind request.
func (t *XrootdTransport) ParseBindResponse(resp *message.Buffer) (int, status.Status) {
	kind, _, body, ok := unframe(resp.Bytes())
	if !ok || kind != kindBindResponse || len(body) < 2 {
		return 0, status.Err(status.CodeAuthError, nil)
	}
	return int(binary.BigEndian.Uint16(body[0:2])), status.Done()
}

// frame prepends the fixed header to body.
func frame(kind uint16, streamID uint16, body []byte) []byte {
	out := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint16(out[0:2], streamID)
	binary.BigEndian.PutUint16(out[2:4], kind)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[headerSize:], body)
	return out
}

// unframe splits a complete frame into its kind, stream id, and body.
func unframe(data []byte) (kind uint16, streamID uint16, body []byte, ok bool) {
	if len(data) < headerSize {
		return 0, 0, nil, false
	}
	streamID = binary.BigEndian.Uint16(data[0:2])
	kind = binary.BigEndian.Uint16(data[2:4])
	bodyLen := int(binary.BigEndian.Uint32(data[4:8]))
	if len(data) < headerSize+bodyLen {
		return 0, 0, nil, false
	}
	return kind, streamID, data[headerSize : headerSize+bodyLen], true
}

func isWouldBlock(err error) bool {
	type temporary interface{ Temporary() bool }
	t, ok := err.(temporary)
	return ok && t.Temporary()
}
