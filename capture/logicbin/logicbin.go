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

// Package logicbin reads the legacy single-channel binary capture format:
// a flat stream of fixed 9-byte records, each a little-endian signed
// 64-bit tick followed by one sample byte.
package logicbin

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

// Source streams logictrace.Sample events out of a legacy binary capture.
type Source struct {
	r      io.Reader
	closer io.Closer
	freq   float64

	currentTS float64
	stopped   bool
}

// New wraps r as a Source sampled at freq Hz. A freq of 0 is treated as 1,
// matching the original tool's "never divide by zero" rule.
func New(r io.Reader, freq float64) *Source {
	if freq == 0 {
		freq = 1
	}
	return &Source{r: r, freq: freq}
}

// Open opens path and returns a Source reading from it at freq Hz.
func Open(path string, freq float64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logicbin: opening capture file: %w", err)
	}
	s := New(f, freq)
	s.closer = f
	return s, nil
}

// Kind implements logictrace.Stage.
func (s *Source) Kind() logictrace.Kind {
	return logictrace.KindSample
}

// Next implements logictrace.Stage.
func (s *Source) Next() (logictrace.Event, bool) {
	if s.stopped {
		return logictrace.Event{}, false
	}

	var buf [9]byte
	if _, err := io.ReadFull(s.r, buf[:8]); err != nil {
		s.stopped = true
		if err == io.EOF {
			s.Close()
			return logictrace.Event{}, false
		}
		return logictrace.Event{Timestamp: s.currentTS, Err: fmt.Errorf("logicbin: reading tick: %w", err)}, true
	}
	tick := int64(binary.LittleEndian.Uint64(buf[:8]))

	if _, err := io.ReadFull(s.r, buf[8:9]); err != nil {
		s.stopped = true
		return logictrace.Event{Timestamp: s.currentTS, Err: fmt.Errorf("logicbin: reading sample byte: %w", err)}, true
	}

	ts := float64(tick) / s.freq
	s.currentTS = ts
	return logictrace.Event{Timestamp: ts, Payload: logictrace.Sample(buf[8])}, true
}

// Close releases the underlying file handle, if any.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Build implements the CLI stage-builder contract for the "logic" stage
// name.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("logic", flag.ContinueOnError)
	freq := fs.Float64("freq", 1, "sample frequency (only used on binary input)")
	fs.Float64Var(freq, "f", 1, "shorthand for -freq")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("logicbin: expected exactly one capture file argument")
	}
	src, err := Open(fs.Arg(0), *freq)
	if err != nil {
		return err
	}
	stack.Push(src)
	return nil
}

// vim: foldmethod=marker
