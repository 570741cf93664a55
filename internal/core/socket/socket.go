// Package socket 定义流核心依赖的最小套接字契约，以及一个基于
// golang.org/x/sys/unix 的非阻塞 TCP 实现。
package socket

// ConnStatus 镜像一个套接字自身看到的连接阶段，独立于上层 Stream 的状态机
// （两者通常同步演进，但套接字层的状态只关心 fd 本身是否可用）。
type ConnStatus int

const (
	StatusDisconnected ConnStatus = iota
	StatusConnecting
	StatusConnected
)

// Socket 是流核心与操作系统套接字之间的契约。真实实现基于非阻塞 TCP fd；
// 测试中用手写的假实现替换。
type Socket interface {
	// Initialize 分配底层资源（创建 fd），在 Connect 之前调用。
	Initialize() error
	// Connect 以非阻塞方式发起连接；返回时连接通常仍在进行中。
	Connect(host string, port int) error
	// Close 释放底层资源。之后该 Socket 不可再用。
	Close() error
	// FD 返回底层文件描述符，供 Poller 注册事件。
	FD() int
	// GetSockOpt 读取 SO_ERROR，用于在异步连接后验证连接是否真正建立。
	GetSockOpt() (sockErr int, err error)
	// Send 尝试写出 p 中的全部或部分字节，返回实际写出的数量。
	Send(p []byte) (int, error)
	// Recv 尝试读取数据到 p，返回实际读取的数量。
	Recv(p []byte) (int, error)
	// Status 返回套接字当前的连接阶段。
	Status() ConnStatus
	// SetStatus 由调用方在观察到阶段变化后写回。
	SetStatus(ConnStatus)
	// ServerAddress 返回对端地址的字符串表示，用于日志。
	ServerAddress() string
}
