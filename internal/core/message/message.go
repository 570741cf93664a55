// Package message 定义在途协议消息的缓冲区表示。
//
// Buffer 是整条连接栈中传递的最小单位：出站时带着写游标，入站时带着已
// 收集的字节数。Stream、Transport、Socket 三层都只通过这一个类型交换数据，
// 避免为读/写路径各自发明一套缓冲区。
package message

// Buffer 是一条协议消息的连续字节缓冲区，附带一个进度游标。
type Buffer struct {
	Data   []byte
	Cursor int
}

// New 用已知的出站负载构造缓冲区，游标置零。
func New(data []byte) *Buffer {
	return &Buffer{Data: data}
}

// NewIncoming 构造一个空的入站缓冲区，供 Append 逐步填充。
func NewIncoming() *Buffer {
	return &Buffer{Data: make([]byte, 0, 256)}
}

// Size 返回缓冲区当前持有的总字节数。
func (b *Buffer) Size() int { return len(b.Data) }

// Remaining 返回出站场景下尚未写出的字节数。
func (b *Buffer) Remaining() int { return len(b.Data) - b.Cursor }

// Done 报告出站缓冲区是否已全部写出。
func (b *Buffer) Done() bool { return b.Cursor >= len(b.Data) }

// BufferAtCursor 返回从游标开始、尚未写出的切片，直接喂给 socket 写调用。
func (b *Buffer) BufferAtCursor() []byte {
	if b.Cursor >= len(b.Data) {
		return nil
	}
	return b.Data[b.Cursor:]
}

// Advance 把游标向前移动 n 字节，对应一次成功的部分写。
func (b *Buffer) Advance(n int) { b.Cursor += n }

// Reset 把游标归零，用于消息被重新入队（例如握手重试）的场景。
func (b *Buffer) Reset() { b.Cursor = 0 }

// Append 把新到达的字节追加到缓冲区尾部，用于入站分片重组。
func (b *Buffer) Append(p []byte) { b.Data = append(b.Data, p...) }

// Bytes 返回整段数据，供 Transport 解析帧头/帧体。
func (b *Buffer) Bytes() []byte { return b.Data }
