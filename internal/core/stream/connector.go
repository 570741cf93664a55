package stream

import "time"

// ConnectorTask is a one-shot TaskManager.Task that re-attempts a connection
// on behalf of a Stream whose previous attempt failed inside its retry
// budget. It is disposable by design: once Run returns, the task manager
// drops it, and a fresh ConnectorTask is registered the next time a fault
// needs a delayed retry.
type ConnectorTask struct {
	stream *Stream
}

// NewConnectorTask wraps s so it can be registered with a TaskManager.
func NewConnectorTask(s *Stream) *ConnectorTask { return &ConnectorTask{stream: s} }

// Run re-attempts the connection, ignoring now: by the time a scheduled
// task fires, the only thing that matters is trying again.
func (t *ConnectorTask) Run(now time.Time) {
	t.stream.Connect()
}
