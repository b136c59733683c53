package agent

import "testing"

func TestEmitterDeliversEvents(t *testing.T) {
	e := NewEmitter("run_1", 4)
	e.Emit(EventToolStart, map[string]interface{}{"tool_name": "bash"})
	e.Close()

	var got []Event
	for ev := range e.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Kind != EventToolStart {
		t.Errorf("expected kind %q, got %q", EventToolStart, got[0].Kind)
	}
	if got[0].RunID != "run_1" {
		t.Errorf("expected run id run_1, got %q", got[0].RunID)
	}
	if got[0].Data["tool_name"] != "bash" {
		t.Errorf("expected tool_name bash, got %v", got[0].Data["tool_name"])
	}
	if got[0].Time.IsZero() {
		t.Error("expected a timestamp on the event")
	}
}

func TestEmitterDropsWhenBufferFull(t *testing.T) {
	e := NewEmitter("run_1", 2)
	// No consumer: every Emit beyond the buffer must drop, not block.
	for i := 0; i < 10; i++ {
		e.Emit(EventModelRequest, nil)
	}
	e.Close()

	n := 0
	for range e.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 buffered events, got %d", n)
	}
}

func TestEmitterCloseIdempotent(t *testing.T) {
	e := NewEmitter("run_1", 1)
	e.Close()
	e.Close()
	e.Emit(EventRunEnd, nil)

	if _, ok := <-e.Events(); ok {
		t.Error("expected the channel to be closed and empty")
	}
}

func TestEmitterNilReceiver(t *testing.T) {
	var e *Emitter
	e.Emit(EventRunStart, nil)
}
