package orchestrator

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ChannelSink is a NotificationSink backed by a bounded channel that an
// external observer loop drains. When the buffer is full the event is
// dropped and counted rather than blocking the orchestrator.
type ChannelSink struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *zap.Logger

	closeOnce sync.Once
	// mu guards sends against Close.
	mu     sync.RWMutex
	closed bool
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(bufferSize int, logger *zap.Logger) *ChannelSink {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelSink{
		events: make(chan Event, bufferSize),
		logger: logger.With(zap.String("component", "events")),
	}
}

// OnEvent enqueues the event, dropping it if the buffer is full or the
// sink has been closed.
func (s *ChannelSink) OnEvent(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- event:
	default:
		count := s.droppedCount.Add(1)
		if count%10 == 1 { // every 10th drop
			s.logger.Warn("event channel full, dropped event",
				zap.Uint64("total_dropped", count),
				zap.String("kind", string(event.Kind)),
				zap.String("task_id", event.TaskID))
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (s *ChannelSink) DroppedCount() uint64 {
	return s.droppedCount.Load()
}

// Events returns a read-only channel of events for the observer loop.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Close closes the events channel. Later events are discarded.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}

// LogSink writes each event to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "events"))}
}

// OnEvent logs the event at info level.
func (s *LogSink) OnEvent(e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("task_id", e.TaskID),
		zap.String("status", string(e.Status)),
	}
	if e.AgentID != "" {
		fields = append(fields, zap.String("agent_id", e.AgentID))
	}
	if e.Error != nil {
		fields = append(fields, zap.Error(e.Error))
	}
	s.logger.Info("task event", fields...)
}
