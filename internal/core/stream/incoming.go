package stream

import (
	"sync"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/status"
)

// IncomingHandler receives a fully framed inbound message, or a failure
// status if the request it was waiting on can never be satisfied.
type IncomingHandler interface {
	HandleMessage(msg *message.Buffer, st status.Status)
}

// IncomingHandlerFunc adapts a plain function to IncomingHandler.
type IncomingHandlerFunc func(*message.Buffer, status.Status)

// HandleMessage implements IncomingHandler.
func (f IncomingHandlerFunc) HandleMessage(msg *message.Buffer, st status.Status) {
	f(msg, st)
}

type incomingEntry struct {
	handler IncomingHandler
	expires time.Time
}

// IncomingQueue 是整条物理连接共享的响应等待队列，只挂在 stream 0 上
// （子流没有自己的响应队列，它们借用主流的）。每当某次请求的响应到达，
// AddMessage 唤起队首的等待者；Tick 负责超时那些等待太久却没有收到任何
// 响应的等待者。它可以被应用层 goroutine（Session.SendRequest、
// bindPendingStream）和 reactor（在各自 Stream 的锁下）同时访问，因此
// 自己持有一把锁，不借用任何 Stream 的 mu。
type IncomingQueue struct {
	mu      sync.Mutex
	entries []incomingEntry
}

// NewIncomingQueue 构造一个空的等待队列。
func NewIncomingQueue() *IncomingQueue { return &IncomingQueue{} }

// PushHandler 注册一个等待下一条入站消息的处理器，expires 为零值表示永不超时。
func (q *IncomingQueue) PushHandler(h IncomingHandler, expires time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, incomingEntry{handler: h, expires: expires})
}

// AddMessage 把一条已完整接收的消息交给队首等待者。没有等待者时消息被丢弃
// （对应于服务端推送了一条没有人请求过的响应）。
func (q *IncomingQueue) AddMessage(msg *message.Buffer) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	q.mu.Unlock()
	e.handler.HandleMessage(msg, status.Done())
}

// FailAll 对队列中每一个等待者调用失败状态并清空队列，用于断流时让所有
// 挂起的请求立即得到答复而不是永久悬挂。
func (q *IncomingQueue) FailAll(st status.Status) {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()
	for _, e := range entries {
		e.handler.HandleMessage(nil, st)
	}
}

// Tick 超时所有相对 now 已过期的等待者，并以 st 通知它们；不返回任何值。
func (q *IncomingQueue) Tick(now time.Time, st status.Status) {
	q.mu.Lock()
	var timedOut []incomingEntry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			timedOut = append(timedOut, e)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	q.mu.Unlock()
	for _, e := range timedOut {
		e.handler.HandleMessage(nil, st)
	}
}

// Empty 报告队列是否没有任何等待者。
func (q *IncomingQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}
