package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2, nil)

	for i := 0; i < 5; i++ {
		sink.OnEvent(Event{Kind: EventTaskSubmitted, TaskID: string(rune('a' + i))})
	}

	assert.Equal(t, uint64(3), sink.DroppedCount())
	assert.Equal(t, "a", (<-sink.Events()).TaskID)
	assert.Equal(t, "b", (<-sink.Events()).TaskID)
}

func TestChannelSink_Close(t *testing.T) {
	sink := NewChannelSink(1, nil)
	sink.OnEvent(Event{Kind: EventTaskSubmitted, TaskID: "t1"})
	sink.Close()
	sink.Close()

	assert.NotPanics(t, func() {
		sink.OnEvent(Event{Kind: EventTaskAssigned, TaskID: "t1"})
	})

	var got []Event
	for e := range sink.Events() {
		got = append(got, e)
	}
	assert.Len(t, got, 1)
	assert.Equal(t, uint64(0), sink.DroppedCount())
}

func TestMultiSink(t *testing.T) {
	var first, second []EventKind
	sink := MultiSink{
		SinkFunc(func(e Event) { first = append(first, e.Kind) }),
		nil,
		SinkFunc(func(e Event) { second = append(second, e.Kind) }),
	}

	sink.OnEvent(Event{Kind: EventTaskSubmitted})
	sink.OnEvent(Event{Kind: EventTaskCompleted})

	want := []EventKind{EventTaskSubmitted, EventTaskCompleted}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestLogSink(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogSink(nil).OnEvent(Event{Kind: EventTaskAssigned, TaskID: "t1", AgentID: "a"})
	})
}
