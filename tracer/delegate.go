// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

package tracer

import (
	"encoding/json"
	"io"
)

// Delegate receives the events produced by a Tracer, in execution order.
type Delegate interface {
	Emit(ev Event)
}

// DelegateFunc adapts an ordinary function to the Delegate interface.
type DelegateFunc func(ev Event)

func (f DelegateFunc) Emit(ev Event) { f(ev) }

// Tee fans every event out to all given delegates.
func Tee(delegates ...Delegate) Delegate {
	return DelegateFunc(func(ev Event) {
		for _, d := range delegates {
			d.Emit(ev)
		}
	})
}

// Recorder buffers events in memory.
type Recorder struct {
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return new(Recorder)
}

func (r *Recorder) Emit(ev Event) {
	r.events = append(r.events, ev)
}

// Events returns the buffered events. The slice is owned by the recorder.
func (r *Recorder) Events() []Event {
	return r.events
}

// Take hands the buffered events over to the caller and empties the recorder.
func (r *Recorder) Take() []Event {
	events := r.events
	r.events = nil
	if events == nil {
		events = []Event{}
	}
	return events
}

// Steps returns only the buffered step events.
func (r *Recorder) Steps() []*Step {
	var steps []*Step
	for _, ev := range r.events {
		if step, ok := ev.(*Step); ok {
			steps = append(steps, step)
		}
	}
	return steps
}

// JSONLWriter streams events as newline delimited JSON objects. The first
// write error is kept and all later events are dropped.
type JSONLWriter struct {
	enc *json.Encoder
	n   int
	err error
}

// NewJSONLWriter creates a writer emitting into out.
func NewJSONLWriter(out io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(out)}
}

func (w *JSONLWriter) Emit(ev Event) {
	if w.err != nil {
		return
	}
	if w.err = w.enc.Encode(ev); w.err == nil {
		w.n++
	}
}

// Count returns the number of events written so far.
func (w *JSONLWriter) Count() int { return w.n }

// Err returns the first error encountered while writing.
func (w *JSONLWriter) Err() error { return w.err }
