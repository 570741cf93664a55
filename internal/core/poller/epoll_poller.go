package poller

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/pkg/lib/log"
)

var logger = log.Logger("poller")

// entry tracks everything the reactor loop needs per registered socket.
type entry struct {
	sock       socket.Socket
	listener   Listener
	readArmed  bool
	writeArmed bool
	readTimer  *time.Timer
	writeTimer *time.Timer
}

// EpollPoller is the production Poller, backed by a single epoll instance
// serviced by one reactor goroutine. Per-socket read/write timeouts are
// implemented with independent time.Timer instances rather than epoll's own
// timeout argument, so each socket can carry its own resolution.
type EpollPoller struct {
	epfd int

	mu      sync.Mutex
	entries map[int]*entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEpollPoller creates the epoll instance and starts its reactor goroutine.
func NewEpollPoller() (*EpollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	p := &EpollPoller{
		epfd:    fd,
		entries: make(map[int]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

func (p *EpollPoller) loop() {
	defer close(p.doneCh)
	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		n, err := unix.EpollWait(p.epfd, events, 200)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Error("epoll_wait failed", "err", err)
			return
		}
		for i := 0; i < n; i++ {
			p.dispatch(int(events[i].Fd), events[i].Events)
		}
	}
}

func (p *EpollPoller) dispatch(fd int, mask uint32) {
	p.mu.Lock()
	e, ok := p.entries[fd]
	p.mu.Unlock()
	if !ok {
		return
	}
	if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		p.stopTimer(e, true)
		e.listener.OnPollEvent(EventReadyToRead, e.sock)
	}
	if mask&unix.EPOLLOUT != 0 {
		p.stopTimer(e, false)
		e.listener.OnPollEvent(EventReadyToWrite, e.sock)
	}
}

func (p *EpollPoller) stopTimer(e *entry, read bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if read {
		if e.readTimer != nil {
			e.readTimer.Stop()
		}
	} else {
		if e.writeTimer != nil {
			e.writeTimer.Stop()
		}
	}
}

// AddSocket registers sock for edge-free level-triggered notifications.
func (p *EpollPoller) AddSocket(sock socket.Socket, listener Listener) error {
	fd := sock.FD()
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("poller: epoll_ctl add fd=%d: %w", fd, err)
	}
	p.mu.Lock()
	p.entries[fd] = &entry{sock: sock, listener: listener}
	p.mu.Unlock()
	return nil
}

// RemoveSocket unregisters sock and cancels any pending timers for it.
func (p *EpollPoller) RemoveSocket(sock socket.Socket) error {
	fd := sock.FD()
	p.mu.Lock()
	e, ok := p.entries[fd]
	delete(p.entries, fd)
	p.mu.Unlock()
	if ok {
		if e.readTimer != nil {
			e.readTimer.Stop()
		}
		if e.writeTimer != nil {
			e.writeTimer.Stop()
		}
	}
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (p *EpollPoller) currentMask(e *entry) uint32 {
	var mask uint32
	if e.readArmed {
		mask |= unix.EPOLLIN
	}
	if e.writeArmed {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// EnableReadNotification toggles EPOLLIN interest and arms/disarms a
// per-socket read-timeout timer.
func (p *EpollPoller) EnableReadNotification(sock socket.Socket, enable bool, resolution time.Duration) error {
	return p.enable(sock, enable, resolution, true)
}

// EnableWriteNotification toggles EPOLLOUT interest and arms/disarms a
// per-socket write-timeout timer.
func (p *EpollPoller) EnableWriteNotification(sock socket.Socket, enable bool, resolution time.Duration) error {
	return p.enable(sock, enable, resolution, false)
}

func (p *EpollPoller) enable(sock socket.Socket, enable bool, resolution time.Duration, read bool) error {
	fd := sock.FD()
	p.mu.Lock()
	e, ok := p.entries[fd]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("poller: fd=%d not registered", fd)
	}
	if read {
		e.readArmed = enable
		if e.readTimer != nil {
			e.readTimer.Stop()
			e.readTimer = nil
		}
	} else {
		e.writeArmed = enable
		if e.writeTimer != nil {
			e.writeTimer.Stop()
			e.writeTimer = nil
		}
	}
	mask := p.currentMask(e)
	if enable && resolution > 0 {
		kind := EventReadTimeout
		if !read {
			kind = EventWriteTimeout
		}
		timer := time.AfterFunc(resolution, func() {
			e.listener.OnPollEvent(kind, e.sock)
		})
		if read {
			e.readTimer = timer
		} else {
			e.writeTimer = timer
		}
	}
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("poller: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Stop terminates the reactor goroutine and closes the epoll fd.
func (p *EpollPoller) Stop() error {
	close(p.stopCh)
	<-p.doneCh
	return unix.Close(p.epfd)
}
