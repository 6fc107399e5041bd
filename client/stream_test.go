// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	subconscious "github.com/subconscious-systems/subconscious-go"
	"github.com/subconscious-systems/subconscious-go/client"
)

// trackingBody counts how many times the response body is closed.
type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

// staticTransport hands back one prepared response for any request.
type staticTransport struct {
	resp *http.Response
}

func (t *staticTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return t.resp, nil
}

// newStreamClient returns a client whose StreamRun call receives body as
// the SSE response, plus the instrumented body for release assertions.
func newStreamClient(t *testing.T, protocol client.Protocol, body string, header http.Header) (*client.Client, *trackingBody) {
	t.Helper()

	tb := &trackingBody{Reader: strings.NewReader(body)}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       tb,
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}

	c, err := client.New(
		client.WithBaseURL("http://stream.test"),
		client.WithAPIKey("sk-test"),
		client.WithProtocol(protocol),
		client.WithHTTPClient(&http.Client{Transport: &staticTransport{resp: resp}}),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c, tb
}

func streamEvents(t *testing.T, protocol client.Protocol, body string) ([]subconscious.StreamEvent, *subconscious.Run, error) {
	t.Helper()

	c, tb := newStreamClient(t, protocol, body, nil)
	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}
	defer stream.Close()

	var events []subconscious.StreamEvent
	for {
		event, err := stream.Next(t.Context())
		if err == io.EOF {
			if tb.closes != 1 {
				t.Errorf("body closed %d times, want 1", tb.closes)
			}
			return events, stream.Run(), nil
		}
		if err != nil {
			return events, stream.Run(), err
		}
		events = append(events, event)
	}
}

func TestStream_RichProtocol(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"run.started","run_id":"run-9"}`,
		``,
		`data: {"type":"run.status","run_id":"run-9","status":"running"}`,
		``,
		`data: {"type":"reasoning","run_id":"run-9","node":{"title":"Plan","thought":"break the task down"}}`,
		``,
		`data: {"type":"tool.call","run_id":"run-9","tool":{"name":"search","input":{"q":"r count"}}}`,
		``,
		`data: {"type":"tool.result","run_id":"run-9","tool":{"name":"search","output":{"hits":3}}}`,
		``,
		`data: {"type":"run.completed","run_id":"run-9","result":{"answer":"three"},"usage":{"total_tokens":52}}`,
		``,
	}, "\n")

	events, run, err := streamEvents(t, client.ProtocolRich, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTypes := []subconscious.EventType{
		subconscious.EventTypeRunStarted,
		subconscious.EventTypeRunStatus,
		subconscious.EventTypeReasoning,
		subconscious.EventTypeToolCall,
		subconscious.EventTypeToolResult,
		subconscious.EventTypeRunCompleted,
	}
	var gotTypes []subconscious.EventType
	for _, ev := range events {
		gotTypes = append(gotTypes, ev.Type())
		if ev.RunID() != "run-9" {
			t.Errorf("event %s run id = %q, want %q", ev.Type(), ev.RunID(), "run-9")
		}
	}
	if diff := cmp.Diff(wantTypes, gotTypes); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}

	wantRun := &subconscious.Run{
		ID:     "run-9",
		Status: subconscious.RunStatusSucceeded,
		Result: &subconscious.RunResult{Answer: "three"},
		Usage:  &subconscious.Usage{TotalTokens: 52},
	}
	if diff := cmp.Diff(wantRun, run); diff != "" {
		t.Errorf("synthesized run mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_RichProtocol_RunFailed(t *testing.T) {
	body := "data: {\"type\":\"run.started\",\"run_id\":\"run-9\"}\n\n" +
		"data: {\"type\":\"run.failed\",\"run_id\":\"run-9\",\"message\":\"engine crashed\"}\n\n"

	events, run, err := streamEvents(t, client.ProtocolRich, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if run == nil || run.Status != subconscious.RunStatusFailed {
		t.Errorf("synthesized run = %+v, want failed status", run)
	}
}

// A rich stream that ends without a completion or failure event is a
// protocol violation, distinct from a normal empty result.
func TestStream_RichProtocol_NoCompletion(t *testing.T) {
	body := "data: {\"type\":\"run.started\",\"run_id\":\"run-9\"}\n\n"

	events, run, err := streamEvents(t, client.ProtocolRich, body)
	if !errors.Is(err, subconscious.ErrNoCompletion) {
		t.Fatalf("expected ErrNoCompletion, got %v", err)
	}
	// The started event was already yielded and is not retracted.
	if len(events) != 1 {
		t.Errorf("got %d events before failure, want 1", len(events))
	}
	if run != nil {
		t.Errorf("expected no synthesized run, got %+v", run)
	}
}

func TestStream_RichProtocol_MalformedRecords(t *testing.T) {
	body := strings.Join([]string{
		`data: {not json`,
		``,
		`data: {"type":"alien.event","run_id":"run-9"}`,
		``,
		`: comment line`,
		`event: noise`,
		`id: 5`,
		``,
		`data: {"type":"run.completed","run_id":"run-9","result":{"answer":"ok"}}`,
		``,
	}, "\n")

	events, run, err := streamEvents(t, client.ProtocolRich, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (malformed records dropped)", len(events))
	}
	if events[0].Type() != subconscious.EventTypeRunCompleted {
		t.Errorf("event type = %q, want run.completed", events[0].Type())
	}
	if run == nil || run.Result == nil || run.Result.Answer != "ok" {
		t.Errorf("synthesized run = %+v, want answer %q", run, "ok")
	}
}

func TestStream_DeltaProtocol(t *testing.T) {
	body := strings.Join([]string{
		`data: {"run_id":"run-42"}`,
		``,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":""}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events, run, err := streamEvents(t, client.ProtocolDelta, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []subconscious.StreamEvent{
		&subconscious.DeltaEvent{Run: "run-42", Content: "Hel"},
		&subconscious.DeltaEvent{Run: "run-42", Content: "lo"},
		&subconscious.DoneEvent{Run: "run-42"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	wantRun := &subconscious.Run{ID: "run-42", Status: subconscious.RunStatusSucceeded}
	if diff := cmp.Diff(wantRun, run); diff != "" {
		t.Errorf("synthesized run mismatch (-want +got):\n%s", diff)
	}
}

// A payload carrying both an error field and delta content must emit only
// the error event: the grammar's sub-cases apply in priority order.
func TestStream_DeltaProtocol_PriorityOrder(t *testing.T) {
	body := `data: {"error":"boom","choices":[{"delta":{"content":"never"}}]}` + "\n\n"

	events, _, err := streamEvents(t, client.ProtocolDelta, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []subconscious.StreamEvent{
		&subconscious.ErrorEvent{Message: "boom"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_DeltaProtocol_ErrorShapes(t *testing.T) {
	tests := map[string]struct {
		record string
		want   *subconscious.ErrorEvent
	}{
		"details preferred over error": {
			record: `data: {"error":"boom","details":"engine exploded","code":"engine_error"}`,
			want:   &subconscious.ErrorEvent{Message: "engine exploded", Code: "engine_error"},
		},
		"error field only": {
			record: `data: {"error":"boom"}`,
			want:   &subconscious.ErrorEvent{Message: "boom"},
		},
		"event line marks error without error field": {
			record: "event: error\ndata: {\"details\":\"upstream timeout\"}",
			want:   &subconscious.ErrorEvent{Message: "upstream timeout"},
		},
		"fallback message": {
			record: "event: error\ndata: {}",
			want:   &subconscious.ErrorEvent{Message: "stream error"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			events, _, err := streamEvents(t, client.ProtocolDelta, tc.record+"\n\n")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if diff := cmp.Diff(tc.want, events[0]); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// The [DONE] sentinel must never be fed to the JSON parser.
func TestStream_DeltaProtocol_DoneSentinel(t *testing.T) {
	events, _, err := streamEvents(t, client.ProtocolDelta, "data: [DONE]\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Type() != subconscious.EventTypeDone {
		t.Fatalf("events = %+v, want single done event", events)
	}
}

func TestStream_DeltaProtocol_MalformedDropped(t *testing.T) {
	body := "data: {broken\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"

	events, _, err := streamEvents(t, client.ProtocolDelta, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

// An empty delta stream with no correlation id produces no synthesized
// run; that is a valid outcome, not an error.
func TestStream_DeltaProtocol_EmptyStream(t *testing.T) {
	events, run, err := streamEvents(t, client.ProtocolDelta, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
	if run != nil {
		t.Errorf("expected no synthesized run, got %+v", run)
	}
}

// The correlation id may be seeded from the response headers before any
// record arrives.
func TestStream_DeltaProtocol_HeaderSeededRunID(t *testing.T) {
	header := http.Header{}
	header.Set("X-Run-ID", "run-from-header")

	c, _ := newStreamClient(t, client.ProtocolDelta, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n", header)
	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}
	defer stream.Close()

	event, err := stream.Next(t.Context())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.RunID() != "run-from-header" {
		t.Errorf("run id = %q, want %q", event.RunID(), "run-from-header")
	}
}

// Abandoning the stream after the first event must release the body
// exactly once.
func TestStream_EarlyCloseReleasesBody(t *testing.T) {
	body := "data: {\"type\":\"run.started\",\"run_id\":\"run-9\"}\n\n" +
		"data: {\"type\":\"run.completed\",\"run_id\":\"run-9\",\"result\":{\"answer\":\"x\"}}\n\n"

	c, tb := newStreamClient(t, client.ProtocolRich, body, nil)
	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}

	if _, err := stream.Next(t.Context()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	stream.Close()
	stream.Close()
	if tb.closes != 1 {
		t.Errorf("body closed %d times, want 1", tb.closes)
	}

	if _, err := stream.Next(t.Context()); !errors.Is(err, subconscious.ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed after Close, got %v", err)
	}
}

func TestStream_ContextCanceled(t *testing.T) {
	c, _ := newStreamClient(t, client.ProtocolRich, "data: {\"type\":\"run.started\",\"run_id\":\"r\"}\n\n", nil)
	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := stream.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStream_All(t *testing.T) {
	body := "data: {\"type\":\"run.started\",\"run_id\":\"run-9\"}\n\n" +
		"data: {\"type\":\"run.completed\",\"run_id\":\"run-9\",\"result\":{\"answer\":\"x\"}}\n\n"

	c, _ := newStreamClient(t, client.ProtocolRich, body, nil)
	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}
	defer stream.Close()

	count := 0
	for event, err := range stream.All(t.Context()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event == nil {
			t.Fatal("nil event")
		}
		count++
	}
	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
	if stream.Run() == nil {
		t.Error("expected synthesized run after drain")
	}
}

// A stream must stay readable past the client's request timeout: the
// timeout bounds request/response calls, not the lifetime of a run.
func TestStream_OutlivesRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")

		io.WriteString(w, "data: {\"type\":\"run.started\",\"run_id\":\"run-9\"}\n\n")
		f.Flush()

		// Keep the body open well past the configured timeout before
		// producing the terminal event.
		time.Sleep(100 * time.Millisecond)

		io.WriteString(w, "data: {\"type\":\"run.completed\",\"run_id\":\"run-9\",\"result\":{\"answer\":\"late\"}}\n\n")
		f.Flush()
	}))
	defer srv.Close()

	c, err := client.New(
		client.WithBaseURL(srv.URL),
		client.WithAPIKey("sk-test"),
		client.WithTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	stream, err := c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}
	defer stream.Close()

	var gotTypes []subconscious.EventType
	for {
		event, err := stream.Next(t.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		gotTypes = append(gotTypes, event.Type())
	}

	wantTypes := []subconscious.EventType{
		subconscious.EventTypeRunStarted,
		subconscious.EventTypeRunCompleted,
	}
	if diff := cmp.Diff(wantTypes, gotTypes); diff != "" {
		t.Errorf("event types mismatch (-want +got):\n%s", diff)
	}

	run := stream.Run()
	if run == nil || run.Result == nil || run.Result.Answer != "late" {
		t.Errorf("synthesized run = %+v, want answer %q", run, "late")
	}
}

func TestStream_NonOKStatusMapsError(t *testing.T) {
	tb := &trackingBody{Reader: strings.NewReader(`{"error":{"code":"invalid_api_key","message":"bad key"}}`)}
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Header:     http.Header{},
		Body:       tb,
	}
	c, err := client.New(
		client.WithBaseURL("http://stream.test"),
		client.WithAPIKey("sk-test"),
		client.WithHTTPClient(&http.Client{Transport: &staticTransport{resp: resp}}),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.StreamRun(t.Context(), &subconscious.RunRequest{Engine: "tim-large", Input: "hi"})
	if !subconscious.IsAuthenticationError(err) {
		t.Errorf("expected authentication error, got %v", err)
	}
	if tb.closes != 1 {
		t.Errorf("body closed %d times, want 1", tb.closes)
	}
}
