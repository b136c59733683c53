package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart      EventKind = "run_start"
	EventRunEnd        EventKind = "run_end"
	EventModelRequest  EventKind = "model_request"
	EventModelResponse EventKind = "model_response"
	EventToolStart     EventKind = "tool_start"
	EventToolDelta     EventKind = "tool_delta"
	EventToolEnd       EventKind = "tool_end"
	EventSteering      EventKind = "steering"
	EventCompaction    EventKind = "compaction"
	EventRetryWait     EventKind = "retry_wait"
	EventLoopWarning   EventKind = "loop_warning"
)

// Event is a typed notification emitted by the agent loop for host
// integration (status lines, transcripts, metrics).
type Event struct {
	Kind  EventKind              `json:"kind"`
	Time  time.Time              `json:"time"`
	RunID string                 `json:"run_id"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Emitter delivers events to the host through a buffered channel. Emission
// never blocks the loop: when the buffer is full the event is dropped.
type Emitter struct {
	runID  string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with the given buffer size (256 when <= 0).
func NewEmitter(runID string, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		runID: runID,
		ch:    make(chan Event, bufferSize),
	}
}

// Emit sends an event. Events emitted after Close, or while the buffer is
// full, are silently dropped.
func (e *Emitter) Emit(kind EventKind, data map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:  kind,
		Time:  time.Now(),
		RunID: e.runID,
		Data:  data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
