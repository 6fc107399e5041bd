// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	subconscious "github.com/subconscious-systems/subconscious-go"
	"github.com/subconscious-systems/subconscious-go/sse"
)

// Stream is a live event stream for one run.
//
// A Stream is lazy, single-pass, and not restartable: events are decoded
// on demand as Next is called, in the order their records arrived on the
// wire. It exclusively owns the underlying response body and releases it
// exactly once, whether the stream is drained, abandoned early, or fails.
// A Stream must not be used from multiple goroutines concurrently.
type Stream struct {
	protocol Protocol
	body     io.ReadCloser
	dec      *sse.Decoder

	done bool  // normal exhaustion reached
	err  error // sticky terminal error

	// final is the synthesized terminal run snapshot. Rich protocol:
	// tracked from the last run.completed/run.failed event. Delta
	// protocol: built from the last seen correlation id at end of
	// stream.
	final *subconscious.Run

	// runID is the delta protocol correlation id, seeded from the
	// response header when present and updated from run_id records.
	runID string

	closeMu  sync.Mutex
	closed   bool
	closeErr error
}

// newStream wraps a streaming response. It fails up front when the
// response carries no readable body.
func newStream(protocol Protocol, resp *http.Response) (*Stream, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, subconscious.ErrMissingBody
	}

	s := &Stream{
		protocol: protocol,
		body:     resp.Body,
		dec:      sse.NewDecoder(resp.Body),
	}
	if protocol == ProtocolDelta {
		s.runID = resp.Header.Get(runIDHeader)
	}
	return s, nil
}

// Next returns the next decoded event.
//
// Records that do not decode to an event (malformed JSON, unknown tags,
// correlation-id records) are skipped silently. At normal exhaustion Next
// returns io.EOF, except for a rich protocol stream that never produced a
// completion or failure event, which is a protocol violation reported as
// subconscious.ErrNoCompletion. Cancelling ctx unwinds the in-progress
// read and returns ctx.Err(); no further events are produced after that.
func (s *Stream) Next(ctx context.Context) (subconscious.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}
	if s.isClosed() {
		return nil, subconscious.ErrStreamClosed
	}

	for {
		rec, err := s.dec.Next(ctx)
		if err == io.EOF {
			return nil, s.finish()
		}
		if err != nil {
			s.err = err
			s.Close()
			return nil, err
		}

		var event subconscious.StreamEvent
		var ok bool
		switch s.protocol {
		case ProtocolDelta:
			event, ok = s.decodeDelta(rec)
		default:
			event, ok = s.decodeRich(rec)
		}
		if !ok {
			continue
		}
		return event, nil
	}
}

// finish handles normal end of stream: it releases the body and settles
// the terminal run snapshot.
func (s *Stream) finish() error {
	s.done = true
	s.Close()

	switch s.protocol {
	case ProtocolRich:
		if s.final == nil {
			s.err = subconscious.ErrNoCompletion
			return s.err
		}
	case ProtocolDelta:
		if s.final == nil && s.runID != "" {
			s.final = &subconscious.Run{
				ID:     s.runID,
				Status: subconscious.RunStatusSucceeded,
			}
		}
	}
	return io.EOF
}

// Run returns the terminal run snapshot synthesized from the stream.
//
// It is only meaningful after Next has reported io.EOF. Rich protocol
// streams always have one by then (or Next failed with ErrNoCompletion);
// delta protocol streams may legitimately have none, in which case Run
// returns nil.
func (s *Stream) Run() *subconscious.Run {
	return s.final
}

// All returns a single-use iterator over the remaining events.
//
// Iteration ends silently at normal exhaustion; any other error, including
// ErrNoCompletion and cancellation, is yielded once with a nil event.
func (s *Stream) All(ctx context.Context) iter.Seq2[subconscious.StreamEvent, error] {
	return func(yield func(subconscious.StreamEvent, error) bool) {
		for {
			event, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Close releases the underlying response body. It is safe to call Close
// multiple times and after an error; the body is closed exactly once.
func (s *Stream) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return s.closeErr
	}
	s.closed = true

	s.dec.Release()
	s.closeErr = s.body.Close()
	return s.closeErr
}

func (s *Stream) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// decodeRich decodes one record under the rich grammar: the data payload
// is the JSON encoding of a typed stream event. Malformed payloads and
// unknown tags decode to no event.
func (s *Stream) decodeRich(rec *sse.Event) (subconscious.StreamEvent, bool) {
	event, ok := unmarshalRichEvent([]byte(rec.Data))
	if !ok {
		return nil, false
	}

	switch e := event.(type) {
	case *subconscious.RunCompletedEvent:
		s.final = &subconscious.Run{
			ID:     e.Run,
			Status: subconscious.RunStatusSucceeded,
			Result: e.Result,
			Usage:  e.Usage,
		}
	case *subconscious.RunFailedEvent:
		s.final = &subconscious.Run{
			ID:     e.Run,
			Status: subconscious.RunStatusFailed,
		}
	}
	return event, true
}

// unmarshalRichEvent decodes a rich payload by its type tag.
func unmarshalRichEvent(data []byte) (subconscious.StreamEvent, bool) {
	var envelope struct {
		Type subconscious.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}

	var event subconscious.StreamEvent
	switch envelope.Type {
	case subconscious.EventTypeRunStarted:
		event = &subconscious.RunStartedEvent{}
	case subconscious.EventTypeRunStatus:
		event = &subconscious.RunStatusEvent{}
	case subconscious.EventTypeRunCompleted:
		event = &subconscious.RunCompletedEvent{}
	case subconscious.EventTypeRunFailed:
		event = &subconscious.RunFailedEvent{}
	case subconscious.EventTypeReasoning:
		event = &subconscious.ReasoningEvent{}
	case subconscious.EventTypeToolCall:
		event = &subconscious.ToolCallEvent{}
	case subconscious.EventTypeToolResult:
		event = &subconscious.ToolResultEvent{}
	default:
		return nil, false
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, false
	}
	return event, true
}

// deltaErrorFallback is reported when an error record carries no usable
// message.
const deltaErrorFallback = "stream error"

// deltaPayload is the delta (OpenAI-compatible) data shape. RunID and
// Error are pointers because their presence, not just their value,
// drives the grammar.
type deltaPayload struct {
	RunID   *string        `json:"run_id"`
	Error   jsontext.Value `json:"error"`
	Details string         `json:"details"`
	Code    string         `json:"code"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// decodeDelta decodes one record under the delta grammar. The sub-cases
// apply in priority order; the first match wins and the rest are never
// inspected.
func (s *Stream) decodeDelta(rec *sse.Event) (subconscious.StreamEvent, bool) {
	if rec.Data == "[DONE]" {
		return &subconscious.DoneEvent{Run: s.runID}, true
	}

	var p deltaPayload
	if err := json.Unmarshal([]byte(rec.Data), &p); err != nil {
		return nil, false
	}

	if p.RunID != nil {
		s.runID = *p.RunID
		return nil, false
	}

	if rec.Name == "error" || hasError(&p) {
		return &subconscious.ErrorEvent{
			Run:     s.runID,
			Message: deltaErrorMessage(&p),
			Code:    p.Code,
		}, true
	}

	if len(p.Choices) > 0 && p.Choices[0].Delta.Content != "" {
		return &subconscious.DeltaEvent{
			Run:     s.runID,
			Content: p.Choices[0].Delta.Content,
		}, true
	}

	return nil, false
}

// hasError reports whether the payload carries a non-null error field.
func hasError(p *deltaPayload) bool {
	return len(p.Error) > 0 && string(p.Error) != "null"
}

func deltaErrorMessage(p *deltaPayload) string {
	if p.Details != "" {
		return p.Details
	}
	if hasError(p) {
		var msg string
		if err := json.Unmarshal(p.Error, &msg); err == nil && msg != "" {
			return msg
		}
		return string(p.Error)
	}
	return deltaErrorFallback
}
