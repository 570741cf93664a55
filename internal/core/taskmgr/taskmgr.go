// Package taskmgr 提供一个按绝对时间调度单次任务的最小任务管理器，供
// ConnectorTask 之类的延迟重连任务使用。
package taskmgr

import (
	"container/heap"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/juztas/xrootd/pkg/lib/log"
)

var logger = log.Logger("taskmgr")

// Task 是一个在指定时刻执行一次的工作单元。Run 返回后任务即被丢弃——
// 任务管理器本身不支持重复调度；需要再次执行的任务应在 Run 内部通过
// RegisterTask 把自己重新注册到新的时刻。
type Task interface {
	Run(now time.Time)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(now time.Time)

// Run implements Task.
func (f TaskFunc) Run(now time.Time) { f(now) }

// TaskManager 是流核心依赖的任务调度契约。
type TaskManager interface {
	// RegisterTask 安排 task 在 at 到达或之后尽快执行一次。
	RegisterTask(task Task, at time.Time)
	// Stop 停止调度循环。
	Stop()
}

type item struct {
	task Task
	at   time.Time
}

type taskHeap []*item

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*item)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Scheduler is the production TaskManager: a single goroutine driven by a
// min-heap of pending tasks, woken either by a timer or by a new
// registration that moved the earliest deadline forward. Clock is injected
// (defaulting to the real wall clock) so tests can drive it deterministically.
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	pending taskHeap
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler starts a Scheduler using the real wall clock.
func NewScheduler() *Scheduler { return NewSchedulerWithClock(clock.New()) }

// NewSchedulerWithClock starts a Scheduler using clk, for deterministic tests.
func NewSchedulerWithClock(clk clock.Clock) *Scheduler {
	s := &Scheduler{
		clk:    clk,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.loop()
	return s
}

// RegisterTask schedules task to run at or after at.
func (s *Scheduler) RegisterTask(task Task, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.pending, &item{task: task, at: at})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)
	timer := s.clk.Timer(24 * time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		var d time.Duration
		if len(s.pending) == 0 {
			d = 24 * time.Hour
		} else {
			d = s.pending[0].at.Sub(s.clk.Now())
			if d < 0 {
				d = 0
			}
		}
		s.mu.Unlock()
		timer.Reset(d)

		select {
		case <-s.stopCh:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	now := s.clk.Now()
	var due []*item
	s.mu.Lock()
	for len(s.pending) > 0 && !s.pending[0].at.After(now) {
		due = append(due, heap.Pop(&s.pending).(*item))
	}
	s.mu.Unlock()
	for _, it := range due {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("scheduled task panicked", "panic", r)
				}
			}()
			it.task.Run(now)
		}()
	}
}

// Stop halts the scheduler loop. Pending tasks that never fired are dropped.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
