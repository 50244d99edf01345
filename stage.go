// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package logictrace

import (
	"errors"
	"fmt"
)

// ErrKindMismatch is returned when a stage is asked to consume a Stage
// whose Kind does not match what it expects.
type ErrKindMismatch struct {
	Expected Kind
	Actual   Kind
}

func (e *ErrKindMismatch) Error() string {
	return fmt.Sprintf("logictrace: expected a %s stage, got %s", e.Expected, e.Actual)
}

// ErrNoPrerequisite is returned by a builder when the stack is empty and
// no upstream stage is available to auto-insert.
var ErrNoPrerequisite = errors.New("logictrace: no upstream stage on the stack and none can be inserted")

// ErrEmptyPipeline is returned by Stack.Finish when the stack holds no
// stage at all.
var ErrEmptyPipeline = errors.New("logictrace: pipeline is empty")

// ErrUnfinishedPipeline is returned by Stack.Finish when more than one
// stage remains unconsumed on the stack.
var ErrUnfinishedPipeline = errors.New("logictrace: pipeline did not reduce to a single stage")

// Event is the generic value every Stage yields: a timestamp in seconds,
// a stage-specific payload, and an optional decode error. Payload is nil
// whenever Err is non-nil. Event intentionally mirrors the Rust source's
// (f64, Result<Box<dyn EventData>, Error>) pair, realized in Go as an
// explicit tagged sum instead of a downcast box.
type Event struct {
	Timestamp float64
	Payload   interface{}
	Err       error
}

// Stage is the capability every pipeline node exposes: a lazy, pull-based
// sequence of typed events plus the run-time type tag of its payload.
//
// Next returns ok=false only at end of stream; a decode error is reported
// as an Event carrying a non-nil Err, not by ok=false, so that a stage can
// keep producing events after a recoverable protocol error.
type Stage interface {
	// Next pulls the next event from the stage, blocking on upstream I/O
	// if necessary. ok is false only once the stage is exhausted.
	Next() (Event, bool)

	// Kind reports the payload type this stage's events carry.
	Kind() Kind
}

// Drain pulls every remaining event out of a Stage and invokes fn for
// each of them, in order, until the stage reports end of stream.
func Drain(s Stage, fn func(Event)) {
	for {
		ev, ok := s.Next()
		if !ok {
			return
		}
		fn(ev)
	}
}

// vim: foldmethod=marker
