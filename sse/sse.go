// Copyright 2026 The Subconscious Systems Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package sse implements an incremental decoder for Server-Sent Events
// style streams.
//
// The decoder consumes raw byte chunks as they arrive from an [io.Reader],
// reassembles them into newline-terminated lines, and folds consecutive
// lines into records. Chunk boundaries carry no meaning: splitting a
// stream at arbitrary byte offsets, including inside a multi-byte UTF-8
// sequence or in the middle of a field line, produces the identical record
// sequence. Lines are split on the byte '\n', which never occurs inside a
// multi-byte UTF-8 sequence, so no incremental text decoding is needed
// beyond the carry-over buffer.
package sse

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/subconscious-systems/subconscious-go/internal/pool"
)

// Event is one decoded server-sent event record.
//
// A record is an accumulation of field lines terminated by a blank line or
// by end of stream. The decoder only surfaces records that carry a data
// field.
type Event struct {
	// Name is the value of the last "event:" field line, if any.
	Name string
	// Data is the accumulated value of the "data:" field lines. When a
	// record carries several data lines their values are joined with
	// '\n', in order.
	Data string
	// LastID is the value of the last "id:" field line, if any.
	LastID string
	// Retry is the value of the last valid "retry:" field line in
	// milliseconds, or 0.
	Retry int
}

// Decoder incrementally decodes events from a byte stream.
//
// A Decoder is single-pass and not safe for concurrent use. It does not
// own the underlying reader; closing the reader is the caller's
// responsibility.
type Decoder struct {
	r io.Reader

	scratch []byte // read buffer
	carry   []byte // bytes after the last '\n', kept across reads
	eof     bool

	// in-progress record
	name    string
	data    *bytes.Buffer
	lastID  string
	retry   int
	hasData bool

	released bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		scratch: make([]byte, 4096),
		data:    pool.Bytes.Get(),
	}
}

// Next returns the next record that carries a data field.
//
// It returns io.EOF once the stream is exhausted, after flushing any
// trailing partial line and any record left open at end of stream. Records
// without a data field are discarded silently. Cancellation of ctx is
// observed between reads and surfaces as ctx.Err().
func (d *Decoder) Next(ctx context.Context) (*Event, error) {
	if d.released {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, ok := d.nextLine()
		if ok {
			if ev, done := d.feedLine(line); done {
				return ev, nil
			}
			continue
		}

		if d.eof {
			return d.flush()
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.carry = append(d.carry, d.scratch[:n]...)
		}
		if err == io.EOF {
			d.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

// nextLine cuts the next complete line off the carry-over buffer. The
// returned slice excludes the terminating '\n'.
func (d *Decoder) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(d.carry, '\n')
	if i < 0 {
		return nil, false
	}
	line := d.carry[:i]
	d.carry = d.carry[i+1:]
	return line, true
}

// flush handles end of stream: a non-empty trailing partial line is
// processed as a final line, then a record left open with a data field is
// emitted before io.EOF.
func (d *Decoder) flush() (*Event, error) {
	if len(d.carry) > 0 {
		line := d.carry
		d.carry = nil
		if ev, done := d.feedLine(line); done {
			return ev, nil
		}
	}
	if d.hasData {
		return d.finalize(), nil
	}
	return nil, io.EOF
}

// feedLine folds one line into the in-progress record. It reports a
// finished event only on a blank line closing a record that has a data
// field.
func (d *Decoder) feedLine(line []byte) (*Event, bool) {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if len(line) == 0 {
		if d.hasData {
			return d.finalize(), true
		}
		d.reset()
		return nil, false
	}

	if line[0] == ':' {
		// Comment line, not a record boundary.
		return nil, false
	}

	var field, value []byte
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field, value = line[:i], line[i+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	} else {
		// A line with no colon names a field with an empty value.
		field = line
	}

	switch string(field) {
	case "event":
		d.name = string(value)
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.Write(value)
		d.hasData = true
	case "id":
		d.lastID = string(value)
	case "retry":
		if ms, err := strconv.Atoi(string(value)); err == nil && ms >= 0 {
			d.retry = ms
		}
	default:
		// Unrecognized field names are ignored.
	}
	return nil, false
}

func (d *Decoder) finalize() *Event {
	ev := &Event{
		Name:   d.name,
		Data:   d.data.String(),
		LastID: d.lastID,
		Retry:  d.retry,
	}
	d.reset()
	return ev
}

func (d *Decoder) reset() {
	d.name = ""
	d.lastID = ""
	d.retry = 0
	d.hasData = false
	d.data.Reset()
}

// Release returns the decoder's internal buffers to their pools. It is
// safe to call Release more than once; after the first call Next reports
// io.EOF.
func (d *Decoder) Release() {
	if d.released {
		return
	}
	d.released = true
	pool.Bytes.Put(d.data)
	d.data = nil
	d.carry = nil
}

// Events returns a single-use iterator over the records of r.
//
// Iteration stops at the first read error; io.EOF is not surfaced as an
// error. The iterator releases the decoder's buffers when the caller
// stops iterating, but does not close r.
func Events(ctx context.Context, r io.Reader) func(yield func(*Event, error) bool) {
	return func(yield func(*Event, error) bool) {
		d := NewDecoder(r)
		defer d.Release()
		for {
			ev, err := d.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
