package stream

import (
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/status"
)

// OutgoingHandler 在一条出站消息被写出（或因超时/故障被放弃）后得到通知。
type OutgoingHandler interface {
	HandleStatus(st status.Status)
}

// OutgoingHandlerFunc 让普通函数满足 OutgoingHandler。
type OutgoingHandlerFunc func(status.Status)

// HandleStatus 实现 OutgoingHandler。
func (f OutgoingHandlerFunc) HandleStatus(st status.Status) { f(st) }

// OutboundEntry 是出站队列中的一个条目：待写的消息、完成回调、以及它的
// 超时截止时间。Owned 为真时表示消息缓冲区由流自身分配（典型地是握手阶段
// 产生的消息），流负责在写完或放弃时释放它；为假时消息属于调用方，流只
// 负责写，不负责释放。
type OutboundEntry struct {
	Msg     *message.Buffer
	Handler OutgoingHandler
	Expires time.Time
	Owned   bool

	// RequestID identifies this entry in logs across the enqueue, write, and
	// fault paths; it has no wire meaning and never leaves the process.
	RequestID string
}

// timedOut 报告该条目是否相对 now 已超过其截止时间。
func (e *OutboundEntry) timedOut(now time.Time) bool {
	return !e.Expires.IsZero() && now.After(e.Expires)
}

// outQueue 是一个先进先出的 OutboundEntry 队列。它本身不加锁：调用方必须
// 已持有所属 Stream 的互斥锁。这与其余状态（pCurrentOut、pStreamStatus 等）
// 共享同一把锁的设计一致，避免为每个子集合引入独立的锁层级。
type outQueue struct {
	entries []*OutboundEntry
}

func (q *outQueue) push(e *OutboundEntry) { q.entries = append(q.entries, e) }

func (q *outQueue) empty() bool { return len(q.entries) == 0 }

func (q *outQueue) len() int { return len(q.entries) }

// popFront 取出并移除队首条目；队列为空时返回 nil。
func (q *outQueue) popFront() *OutboundEntry {
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e
}

// front 查看队首条目而不移除。
func (q *outQueue) front() *OutboundEntry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// drainExpired 扫描整个队列，移除并返回所有相对 now 已超时的条目，保留
// current（当前正在写的条目，即便它已过期也绝不在此处被摘除——Tick 永不
// 取消 pCurrentOut，只取消尚未开始写的排队条目）。
func (q *outQueue) drainExpired(now time.Time, current *OutboundEntry) []*OutboundEntry {
	var timedOut []*OutboundEntry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e == current {
			kept = append(kept, e)
			continue
		}
		if e.timedOut(now) {
			timedOut = append(timedOut, e)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return timedOut
}

// drainAll 移除并返回队列中的全部条目，用于断流时失败所有挂起的写请求。
func (q *outQueue) drainAll() []*OutboundEntry {
	all := q.entries
	q.entries = nil
	return all
}
