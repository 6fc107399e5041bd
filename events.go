// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package subconscious

// EventType is the discriminator tag carried by every stream event payload.
type EventType string

// Rich protocol event tags.
const (
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunStatus    EventType = "run.status"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeReasoning    EventType = "reasoning"
	EventTypeToolCall     EventType = "tool.call"
	EventTypeToolResult   EventType = "tool.result"
)

// Delta protocol event tags.
const (
	EventTypeDelta EventType = "delta"
	EventTypeDone  EventType = "done"
	EventTypeError EventType = "error"
)

// StreamEvent is one typed event decoded from a run event stream.
//
// The set of implementations is closed: rich protocol streams produce
// RunStartedEvent, RunStatusEvent, RunCompletedEvent, RunFailedEvent,
// ReasoningEvent, ToolCallEvent and ToolResultEvent; delta protocol
// streams produce DeltaEvent, DoneEvent and ErrorEvent. A single stream
// only ever produces events from one of the two sets.
type StreamEvent interface {
	// Type returns the event discriminator tag.
	Type() EventType
	// RunID returns the identifier of the run that produced the event.
	// It may be empty when the stream has not announced one yet.
	RunID() string

	streamEvent()
}

// RunStartedEvent signals that the server began executing the run.
type RunStartedEvent struct {
	Run string `json:"run_id"`
}

func (e *RunStartedEvent) Type() EventType { return EventTypeRunStarted }
func (e *RunStartedEvent) RunID() string   { return e.Run }
func (e *RunStartedEvent) streamEvent()    {}

// RunStatusEvent reports a run status transition.
type RunStatusEvent struct {
	Run    string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

func (e *RunStatusEvent) Type() EventType { return EventTypeRunStatus }
func (e *RunStatusEvent) RunID() string   { return e.Run }
func (e *RunStatusEvent) streamEvent()    {}

// RunCompletedEvent carries the final answer, the reasoning tree, and
// usage accounting. It is the last meaningful event of a successful rich
// protocol stream.
type RunCompletedEvent struct {
	Run    string     `json:"run_id"`
	Result *RunResult `json:"result,omitzero"`
	Usage  *Usage     `json:"usage,omitzero"`
}

func (e *RunCompletedEvent) Type() EventType { return EventTypeRunCompleted }
func (e *RunCompletedEvent) RunID() string   { return e.Run }
func (e *RunCompletedEvent) streamEvent()    {}

// RunFailedEvent signals that the run failed server-side.
type RunFailedEvent struct {
	Run     string `json:"run_id"`
	Message string `json:"message,omitzero"`
	Code    string `json:"code,omitzero"`
}

func (e *RunFailedEvent) Type() EventType { return EventTypeRunFailed }
func (e *RunFailedEvent) RunID() string   { return e.Run }
func (e *RunFailedEvent) streamEvent()    {}

// ReasoningEvent carries an intermediate reasoning step.
type ReasoningEvent struct {
	Run  string         `json:"run_id"`
	Node *ReasoningNode `json:"node,omitzero"`
}

func (e *ReasoningEvent) Type() EventType { return EventTypeReasoning }
func (e *ReasoningEvent) RunID() string   { return e.Run }
func (e *ReasoningEvent) streamEvent()    {}

// ToolCallEvent reports that the engine invoked a tool.
type ToolCallEvent struct {
	Run  string  `json:"run_id"`
	Tool ToolUse `json:"tool"`
}

func (e *ToolCallEvent) Type() EventType { return EventTypeToolCall }
func (e *ToolCallEvent) RunID() string   { return e.Run }
func (e *ToolCallEvent) streamEvent()    {}

// ToolResultEvent reports the outcome of an earlier tool call.
type ToolResultEvent struct {
	Run  string  `json:"run_id"`
	Tool ToolUse `json:"tool"`
}

func (e *ToolResultEvent) Type() EventType { return EventTypeToolResult }
func (e *ToolResultEvent) RunID() string   { return e.Run }
func (e *ToolResultEvent) streamEvent()    {}

// DeltaEvent carries an incremental fragment of the answer text.
type DeltaEvent struct {
	Run     string
	Content string
}

func (e *DeltaEvent) Type() EventType { return EventTypeDelta }
func (e *DeltaEvent) RunID() string   { return e.Run }
func (e *DeltaEvent) streamEvent()    {}

// DoneEvent signals normal end of a delta protocol stream.
type DoneEvent struct {
	Run string
}

func (e *DoneEvent) Type() EventType { return EventTypeDone }
func (e *DoneEvent) RunID() string   { return e.Run }
func (e *DoneEvent) streamEvent()    {}

// ErrorEvent reports a server-side error on a delta protocol stream.
type ErrorEvent struct {
	Run     string
	Message string
	Code    string
}

func (e *ErrorEvent) Type() EventType { return EventTypeError }
func (e *ErrorEvent) RunID() string   { return e.Run }
func (e *ErrorEvent) streamEvent()    {}
