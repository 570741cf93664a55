// Package poller 定义流核心依赖的事件通知契约，以及一个基于 Linux epoll
// 的并发安全实现。
package poller

import (
	"time"

	"github.com/juztas/xrootd/internal/core/socket"
)

// EventKind 对应一次回调所代表的事件种类。
type EventKind int

const (
	EventReadyToRead EventKind = iota
	EventReadyToWrite
	EventReadTimeout
	EventWriteTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventReadyToRead:
		return "ready-to-read"
	case EventReadyToWrite:
		return "ready-to-write"
	case EventReadTimeout:
		return "read-timeout"
	case EventWriteTimeout:
		return "write-timeout"
	default:
		return "unknown-event"
	}
}

// Listener 接收某个已注册 Socket 上发生的事件。实现通常就是 Stream.Event。
type Listener interface {
	OnPollEvent(kind EventKind, sock socket.Socket)
}

// ListenerFunc 让普通函数满足 Listener。
type ListenerFunc func(EventKind, socket.Socket)

// OnPollEvent 实现 Listener。
func (f ListenerFunc) OnPollEvent(kind EventKind, sock socket.Socket) { f(kind, sock) }

// Poller 是流核心依赖的事件轮询契约：注册/注销套接字，并按需开启或关闭
// 读、写方向的通知（包括超时通知）。一个 Poller 实例通常同时服务许多条
// 物理连接上的许多条流。
type Poller interface {
	// AddSocket 把 sock 纳入轮询范围，之后的事件通过 listener 回调。
	AddSocket(sock socket.Socket, listener Listener) error
	// RemoveSocket 把 sock 从轮询范围移除，停止一切后续回调。
	RemoveSocket(sock socket.Socket) error
	// EnableReadNotification 开启/关闭读方向通知；resolution>0 时同时安排一个
	// 读超时：若到期仍未就绪，触发 EventReadTimeout。
	EnableReadNotification(sock socket.Socket, enable bool, resolution time.Duration) error
	// EnableWriteNotification 与 EnableReadNotification 对称，服务写方向。
	EnableWriteNotification(sock socket.Socket, enable bool, resolution time.Duration) error
	// Stop 关闭轮询器并释放底层资源。
	Stop() error
}
