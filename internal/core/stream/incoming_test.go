package stream

import (
	"testing"
	"time"

	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/status"
)

func TestIncomingQueueFIFODispatch(t *testing.T) {
	q := NewIncomingQueue()
	var gotFirst, gotSecond *message.Buffer

	q.PushHandler(IncomingHandlerFunc(func(m *message.Buffer, st status.Status) { gotFirst = m }), time.Time{})
	q.PushHandler(IncomingHandlerFunc(func(m *message.Buffer, st status.Status) { gotSecond = m }), time.Time{})

	first := message.New([]byte("one"))
	second := message.New([]byte("two"))
	q.AddMessage(first)
	q.AddMessage(second)

	if gotFirst != first || gotSecond != second {
		t.Fatalf("responses were not dispatched FIFO")
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty once every waiter has been served")
	}
}

func TestIncomingQueueAddMessageWithNoWaiterIsDropped(t *testing.T) {
	q := NewIncomingQueue()
	q.AddMessage(message.New([]byte("unexpected"))) // must not panic
}

func TestIncomingQueueFailAll(t *testing.T) {
	q := NewIncomingQueue()
	var calls int
	var gotStatus status.Status
	for i := 0; i < 3; i++ {
		q.PushHandler(IncomingHandlerFunc(func(m *message.Buffer, st status.Status) {
			calls++
			gotStatus = st
		}), time.Time{})
	}
	failSt := status.Err(status.CodeStreamDisconnect, nil)
	q.FailAll(failSt)
	if calls != 3 {
		t.Fatalf("expected 3 handlers invoked, got %d", calls)
	}
	if !gotStatus.IsError() {
		t.Fatalf("handlers should have been invoked with the failure status")
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty after FailAll")
	}
}

func TestIncomingQueueTickExpiresOnlyStaleWaiters(t *testing.T) {
	q := NewIncomingQueue()
	now := time.Now()
	var expiredCalled, freshCalled bool
	q.PushHandler(IncomingHandlerFunc(func(m *message.Buffer, st status.Status) { expiredCalled = true }), now.Add(-time.Second))
	q.PushHandler(IncomingHandlerFunc(func(m *message.Buffer, st status.Status) { freshCalled = true }), now.Add(time.Hour))

	q.Tick(now, status.Err(status.CodeSocketTimeout, nil))

	if !expiredCalled {
		t.Fatalf("expired waiter should have been timed out")
	}
	if freshCalled {
		t.Fatalf("fresh waiter should not have been touched")
	}
}
