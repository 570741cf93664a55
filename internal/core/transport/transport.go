// Package transport 定义流核心之外、协议相关的可插拔部分：握手序列、帧
// 边界识别、连接存活判定。流核心只通过 Transport 接口与协议细节打交道，
// 自身对帧格式、握手步数一无所知。
package transport

import (
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/socket"
	"github.com/juztas/xrootd/internal/core/status"
)

// ChannelData 是一条物理连接（及其全部子流）共享的协议层会话状态，例如
// 协商出的会话 ID、协议版本。它的内容完全由 Transport 实现自行定义和解释，
// 流核心只负责在子流之间传递同一个指针，从不读写其字段。
type ChannelData struct {
	// SessionID 是握手协商出的会话标识，MultiStream 绑定子流时需要它。
	SessionID [16]byte
	// ProtocolVersion 是服务端在握手响应中宣布的协议版本号。
	ProtocolVersion uint32
	// LastActivity 记录握手完成的时间（XrootdTransport 只在握手最后一步写入
	// 一次）。IsStreamTTLElapsed 不读取它，流的空闲时长由 Stream 自己的
	// lastActivity 计算。
	LastActivity time.Time
}

// Transport 是流核心依赖的协议插件契约：驱动握手、识别帧边界、判定流的
// 存活期限。一个 Transport 实例在一条物理连接的所有子流之间共享。
type Transport interface {
	// HandShake 驱动握手状态机前进一步。step 从 0 开始，每次调用后由调用方
	// 自增；in 是上一轮收到的完整入站消息（第一次调用时为 nil）。返回的
	// out（可为 nil）会被调用方排入发送队列；返回的状态决定调用方是否立即
	// 再次调用（Retry）、等待下一次网络事件（Continue）、还是握手已完成
	// （Done）。
	HandShake(step int, in *message.Buffer, cd *ChannelData) (out *message.Buffer, st status.Status)

	// GetMessage 把新到达的字节喂给套接字、累积进 buf，并判断一帧是否已经
	// 完整。尚未凑够一帧时返回 Continue；凑够时返回 Done；套接字出错时返回
	// 对应的 Err 状态。
	GetMessage(buf *message.Buffer, sock socket.Socket) status.Status

	// Disconnect 通知协议层某条子流已断开，供其清理会话相关的统计或状态。
	Disconnect(cd *ChannelData, subStreamNum int)

	// IsStreamTTLElapsed 判断自 idleFor 以来的空闲时长是否已经超过协议层认为
	// 可以接受的存活上限，供读/写超时处理器决定是否主动断流。
	IsStreamTTLElapsed(idleFor time.Duration, cd *ChannelData) bool

	// BuildBindRequest 构造用于把一条临时子流绑定到服务端会话的请求消息，
	// 供 MultiStream 在子流握手完成后发送。
	BuildBindRequest(cd *ChannelData, tempStreamNum int) *message.Buffer

	// ParseBindResponse 从服务端对绑定请求的应答中提取服务端分配的子流 id。
	ParseBindResponse(resp *message.Buffer) (assignedStreamNum int, st status.Status)
}
