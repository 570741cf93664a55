package socket

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// TCPSocket is the production Socket implementation: a non-blocking IPv4/IPv6
// TCP file descriptor managed directly through golang.org/x/sys/unix, mirroring
// the raw connect/getsockopt(SO_ERROR)/write/read sequence a native client
// uses to drive its own event loop instead of a blocking net.Conn.
type TCPSocket struct {
	mu     sync.Mutex
	fd     int
	status ConnStatus
	addr   string
}

// NewTCPSocket returns an uninitialized socket; call Initialize before Connect.
func NewTCPSocket() *TCPSocket {
	return &TCPSocket{fd: -1, status: StatusDisconnected}
}

// Initialize creates the underlying non-blocking fd.
func (s *TCPSocket) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("socket: create fd: %w", err)
	}
	s.fd = fd
	return nil
}

// Connect starts a non-blocking connect; EINPROGRESS is the expected result.
func (s *TCPSocket) Connect(host string, port int) error {
	ip, err := resolveIPv4(host)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip[:])
	err = unix.Connect(s.fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		return fmt.Errorf("socket: connect %s: %w", s.addr, err)
	}
	s.status = StatusConnecting
	return nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	ips, err := net.LookupIP(host)
	if err != nil {
		return out, fmt.Errorf("socket: resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}
	return out, fmt.Errorf("socket: no IPv4 address for %s", host)
}

// Close releases the fd. Safe to call more than once.
func (s *TCPSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	s.status = StatusDisconnected
	return err
}

// FD returns the raw file descriptor.
func (s *TCPSocket) FD() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// GetSockOpt reads SO_ERROR, the standard way to learn whether a non-blocking
// connect that became writable actually succeeded.
func (s *TCPSocket) GetSockOpt() (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return 0, fmt.Errorf("socket: getsockopt on closed fd")
	}
	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, fmt.Errorf("socket: getsockopt SO_ERROR: %w", err)
	}
	return val, nil
}

// Send writes as many bytes of p as the kernel will currently accept.
func (s *TCPSocket) Send(p []byte) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return 0, fmt.Errorf("socket: send on closed fd")
	}
	n, err := unix.Write(fd, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Recv reads as many bytes as currently available into p.
func (s *TCPSocket) Recv(p []byte) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return 0, fmt.Errorf("socket: recv on closed fd")
	}
	n, err := unix.Read(fd, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Status returns the socket's own view of its connection phase.
func (s *TCPSocket) Status() ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus overwrites the socket's connection phase.
func (s *TCPSocket) SetStatus(st ConnStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// ServerAddress returns the dialed address, for logging.
func (s *TCPSocket) ServerAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
