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

// Package vcd reads a (restricted) subset of IEEE 1364 Value Change Dump
// files and turns them into a stream of logictrace.Sample events.
//
// Only $timescale, $var (wire only), a timestamp marker, and scalar value
// changes are acted on; every other section ($date, $version, $scope,
// $comment, ...) is skipped verbatim, and vector/real value changes are
// ignored rather than treated as errors, mirroring the original parser's
// catch-all behavior.
package vcd

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ithinuel/logic-trace-parser"
)

// Source streams logictrace.Sample events out of a VCD file.
type Source struct {
	sc      *bufio.Scanner
	closer  io.Closer
	factor  float64
	firstTS *float64

	currentTS float64
	vars      map[string]uint
	state     uint64
	stopped   bool
}

// New wraps r as a VCD Source. r is read lazily, one whitespace-delimited
// token at a time, as Next is called.
func New(r io.Reader) *Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)
	return &Source{
		sc:        sc,
		factor:    1,
		vars:      map[string]uint{},
		currentTS: -0.1,
	}
}

// Open opens path and returns a Source reading from it. The returned
// Source owns the file and closes it once exhausted or when Close is
// called explicitly.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vcd: opening capture file: %w", err)
	}
	s := New(f)
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

	for s.sc.Scan() {
		tok := s.sc.Text()
		switch {
		case tok == "$end":
			continue
		case tok == "$timescale":
			if err := s.parseTimescale(); err != nil {
				return s.fail(err)
			}
			continue
		case tok == "$var":
			if err := s.parseVar(); err != nil {
				return s.fail(err)
			}
			continue
		case tok == "$dumpvars":
			continue
		case strings.HasPrefix(tok, "$"):
			s.skipSection()
			continue
		case strings.HasPrefix(tok, "#"):
			if err := s.parseTimestamp(tok); err != nil {
				return s.fail(err)
			}
			continue
		case len(tok) > 0 && (tok[0] == 'b' || tok[0] == 'B' || tok[0] == 'r' || tok[0] == 'R'):
			// vector/real change: value and identifier are two separate
			// tokens; neither is acted on.
			s.sc.Scan()
			continue
		default:
			return s.parseScalarChange(tok)
		}
	}
	s.Close()
	return logictrace.Event{}, false
}

// Close releases the underlying file handle, if any.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Source) fail(err error) (logictrace.Event, bool) {
	s.stopped = true
	return logictrace.Event{Timestamp: s.currentTS, Err: err}, true
}

func (s *Source) skipSection() {
	for s.sc.Scan() {
		if s.sc.Text() == "$end" {
			return
		}
	}
}

func (s *Source) parseTimescale() error {
	var parts []string
	for s.sc.Scan() {
		t := s.sc.Text()
		if t == "$end" {
			break
		}
		parts = append(parts, t)
	}
	joined := strings.Join(parts, "")
	i := 0
	for i < len(joined) && joined[i] >= '0' && joined[i] <= '9' {
		i++
	}
	numStr, unitStr := joined[:i], joined[i:]
	if numStr == "" {
		numStr = "1"
	}
	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return fmt.Errorf("vcd: invalid timescale %q: %w", joined, err)
	}
	unit, ok := unitFactor(unitStr)
	if !ok {
		return fmt.Errorf("vcd: unknown timescale unit %q", unitStr)
	}
	s.factor = n * unit
	return nil
}

func unitFactor(u string) (float64, bool) {
	switch u {
	case "s":
		return 1, true
	case "ms":
		return 0.001, true
	case "us":
		return 0.000001, true
	case "ns":
		return 0.000000001, true
	case "ps":
		return 0.000000000001, true
	case "fs":
		return 0.000000000000001, true
	default:
		return 0, false
	}
}

func (s *Source) parseVar() error {
	fields := make([]string, 0, 4)
	for len(fields) < 4 {
		if !s.sc.Scan() {
			return io.ErrUnexpectedEOF
		}
		fields = append(fields, s.sc.Text())
	}
	varType, id, name := fields[0], fields[2], fields[3]
	for s.sc.Scan() {
		if s.sc.Text() == "$end" {
			break
		}
	}
	if varType != "wire" {
		return fmt.Errorf("vcd: unsupported VarType: %s", varType)
	}
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return fmt.Errorf("vcd: cannot derive a channel index from %q", name)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("vcd: cannot derive a channel index from %q: %w", name, err)
	}
	s.vars[id] = uint(idx)
	return nil
}

func (s *Source) parseTimestamp(tok string) error {
	ticks, err := strconv.ParseInt(tok[1:], 10, 64)
	if err != nil {
		return fmt.Errorf("vcd: invalid timestamp %q: %w", tok, err)
	}
	newTS := float64(ticks) * s.factor
	if s.firstTS == nil {
		first := newTS
		s.firstTS = &first
	}
	shifted := newTS - *s.firstTS - 0.1
	if s.currentTS > shifted {
		return fmt.Errorf("vcd: timestamp must be monotonic")
	}
	s.currentTS = shifted
	return nil
}

func (s *Source) parseScalarChange(tok string) (logictrace.Event, bool) {
	if len(tok) < 2 {
		return s.fail(fmt.Errorf("vcd: malformed value change %q", tok))
	}
	var bit uint64
	switch tok[0] {
	case '0':
		bit = 0
	case '1':
		bit = 1
	default:
		return s.fail(fmt.Errorf("vcd: unsupported value %q", tok[:1]))
	}
	id := tok[1:]
	shift, ok := s.vars[id]
	if !ok {
		return s.fail(fmt.Errorf("vcd: value change for undeclared identifier %q", id))
	}
	s.state &^= 1 << shift
	s.state |= bit << shift
	return logictrace.Event{Timestamp: s.currentTS, Payload: logictrace.Sample(s.state)}, true
}

// Build implements the CLI stage-builder contract: it opens the capture
// file named by the stage's positional argument and pushes a Source onto
// the pipeline stack.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("vcd", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("vcd: expected exactly one capture file argument")
	}
	src, err := Open(fs.Arg(0))
	if err != nil {
		return err
	}
	stack.Push(src)
	return nil
}

// vim: foldmethod=marker
