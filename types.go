// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

// Package subconscious provides Go types for the Subconscious run API.
// This file contains the run data model: runs, results, reasoning trees,
// and usage accounting, with JSON serialization support.
package subconscious

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

// Valid run statuses.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusTimedOut  RunStatus = "timed_out"
)

// Terminal reports whether the status is a final state: once a run reaches
// a terminal status the server never transitions it again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled, RunStatusTimedOut:
		return true
	default:
		return false
	}
}

// Run is a snapshot of one remote task. Runs are created server-side on
// submission; clients only ever observe snapshots of them.
type Run struct {
	// ID is the opaque run identifier assigned by the server.
	ID string `json:"run_id"`
	// Status is the lifecycle state at the time of the snapshot.
	Status RunStatus `json:"status,omitzero"`
	// Result holds the final answer once the run has succeeded.
	Result *RunResult `json:"result,omitzero"`
	// Usage holds token and tool-call accounting, when reported.
	Usage *Usage `json:"usage,omitzero"`

	CreatedAt  time.Time `json:"created_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// RunResult is the final output of a successful run.
type RunResult struct {
	// Answer is the final answer text.
	Answer string `json:"answer"`
	// Reasoning is the root of the reasoning tree that produced the
	// answer. May be nil when the engine does not expose reasoning.
	Reasoning *ReasoningNode `json:"reasoning,omitzero"`
}

// ReasoningNode is one node of a reasoning tree. Each node is owned
// exclusively by the RunResult that contains it; nodes are never shared
// between results and carry no back-references.
type ReasoningNode struct {
	Title      string           `json:"title,omitzero"`
	Thought    string           `json:"thought,omitzero"`
	ToolUses   []ToolUse        `json:"tool_uses,omitzero"`
	Subtasks   []*ReasoningNode `json:"subtasks,omitzero"`
	Conclusion string           `json:"conclusion,omitzero"`
}

// ToolUse records a single tool invocation made while reasoning.
type ToolUse struct {
	Name   string         `json:"name"`
	Input  jsontext.Value `json:"input,omitzero"`
	Output jsontext.Value `json:"output,omitzero"`
	Error  string         `json:"error,omitzero"`
}

// Usage reports token and tool-call accounting for a run.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitzero"`
	OutputTokens int `json:"output_tokens,omitzero"`
	TotalTokens  int `json:"total_tokens,omitzero"`
	ToolCalls    int `json:"tool_calls,omitzero"`
}

// RunRequest is the submission payload for a new run.
type RunRequest struct {
	// Engine selects the reasoning engine that executes the run.
	Engine string `json:"engine"`
	// Input is the task text.
	Input string `json:"input"`
	// Instructions optionally steer the engine.
	Instructions string `json:"instructions,omitzero"`
	// Metadata is attached to the run verbatim and echoed in snapshots.
	Metadata map[string]string `json:"metadata,omitzero"`
}

// ListRunsParams filters and pages a run listing.
type ListRunsParams struct {
	// Limit caps the number of runs returned; the server applies its
	// own maximum.
	Limit int
	// Cursor continues a previous page.
	Cursor string
	// Status restricts the listing to runs in one status.
	Status RunStatus
}

// RunPage is one page of a run listing.
type RunPage struct {
	Runs []Run `json:"runs"`
	// NextCursor is non-empty when more pages exist.
	NextCursor string `json:"next_cursor,omitzero"`
}

// Validate ensures the RunRequest is valid.
func (r *RunRequest) Validate() error {
	if r.Engine == "" {
		return fmt.Errorf("run request engine cannot be empty")
	}
	if r.Input == "" {
		return fmt.Errorf("run request input cannot be empty")
	}
	return nil
}
