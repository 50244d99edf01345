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

// Package logic2 reads a directory of Saleae Logic 2 "digital_<n>.bin"
// exports and merges every channel's transition timeline into a single
// stream of logictrace.Sample events.
package logic2

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

const coalesceWindow = 1e-9

type transition struct {
	id uint
	ts float64
}

type channel struct {
	id           uint
	initialState bool
	transitions  []float64
}

func parseCommonHeader(buf []byte) (version, fileType uint32, err error) {
	if len(buf) != 16 {
		return 0, 0, fmt.Errorf("logic2: incomplete file header")
	}
	if !strings.HasPrefix(string(buf), "<SALEAE>") {
		return 0, 0, fmt.Errorf("logic2: invalid prefix")
	}
	version = binary.LittleEndian.Uint32(buf[8:12])
	fileType = binary.LittleEndian.Uint32(buf[12:16])
	return version, fileType, nil
}

func parseDigitalHeader(buf []byte) (initialState uint32, begin, end float64, numTransitions uint64, err error) {
	if len(buf) != 28 {
		return 0, 0, 0, 0, fmt.Errorf("logic2: incomplete file header")
	}
	initialState = binary.LittleEndian.Uint32(buf[0:4])
	begin = math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12]))
	end = math.Float64frombits(binary.LittleEndian.Uint64(buf[12:20]))
	numTransitions = binary.LittleEndian.Uint64(buf[20:28])
	return initialState, begin, end, numTransitions, nil
}

func readChannel(path string, id uint) (*channel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hdr [16]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, fmt.Errorf("logic2: reading common header of %s: %w", path, err)
	}
	version, fileType, err := parseCommonHeader(hdr[:])
	if err != nil {
		return nil, fmt.Errorf("logic2: %s: %w", path, err)
	}
	if version != 0 {
		return nil, fmt.Errorf("logic2: %s: unsupported file format version %d", path, version)
	}
	if fileType != 0 {
		return nil, fmt.Errorf("logic2: %s: unexpected file type %d", path, fileType)
	}

	var dhdr [28]byte
	if _, err := io.ReadFull(f, dhdr[:]); err != nil {
		return nil, fmt.Errorf("logic2: reading digital header of %s: %w", path, err)
	}
	initialState, _, _, numTransitions, err := parseDigitalHeader(dhdr[:])
	if err != nil {
		return nil, fmt.Errorf("logic2: %s: %w", path, err)
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("logic2: reading transitions of %s: %w", path, err)
	}
	if len(rest)%8 != 0 {
		return nil, fmt.Errorf("logic2: %s: corrupted file", path)
	}
	transitions := make([]float64, 0, len(rest)/8)
	for i := 0; i < len(rest); i += 8 {
		transitions = append(transitions, math.Float64frombits(binary.LittleEndian.Uint64(rest[i:i+8])))
	}
	if uint64(len(transitions)) != numTransitions {
		return nil, fmt.Errorf("logic2: %s: transition count mismatch", path)
	}

	return &channel{id: id, initialState: initialState == 1, transitions: transitions}, nil
}

func channelID(name string) (uint, bool) {
	rest := strings.TrimPrefix(name, "digital_")
	if rest == name {
		return 0, false
	}
	rest = strings.TrimSuffix(rest, ".bin")
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}

// Source streams merged logictrace.Sample events out of a directory of
// digital_<n>.bin exports.
type Source struct {
	events []logictrace.Event
	pos    int
}

// Open scans dir for channel files and builds the merged, coalesced
// sample timeline.
func Open(dir string) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("logic2: reading directory %s: %w", dir, err)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("processing transitions"),
		progressbar.OptionSpinnerType(11),
		progressbar.OptionSetWriter(os.Stderr),
	)
	defer bar.Finish()

	var channels []*channel
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := channelID(entry.Name())
		if !ok {
			continue
		}
		ch, err := readChannel(filepath.Join(dir, entry.Name()), id)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
		_ = bar.Add(1)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("logic2: no channel files found in %s", dir)
	}

	var initialState uint64
	var transitions []transition
	for _, ch := range channels {
		if ch.initialState {
			initialState |= 1 << ch.id
		}
		for _, ts := range ch.transitions {
			transitions = append(transitions, transition{id: ch.id, ts: ts})
		}
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].ts < transitions[j].ts
	})

	events := make([]logictrace.Event, 0, len(transitions)+1)
	currentState := initialState
	events = append(events, logictrace.Event{Timestamp: 0, Payload: logictrace.Sample(currentState)})

	for i := 0; i < len(transitions); {
		firstTS := transitions[i].ts
		var mask uint64
		j := i
		for j < len(transitions) {
			bit := uint64(1) << transitions[j].id
			if mask&bit == bit {
				break
			}
			if transitions[j].ts-firstTS >= coalesceWindow {
				break
			}
			mask |= bit
			j++
		}
		currentState ^= mask
		events = append(events, logictrace.Event{Timestamp: firstTS, Payload: logictrace.Sample(currentState)})
		i = j
	}

	return &Source{events: events}, nil
}

// Kind implements logictrace.Stage.
func (s *Source) Kind() logictrace.Kind {
	return logictrace.KindSample
}

// Next implements logictrace.Stage.
func (s *Source) Next() (logictrace.Event, bool) {
	if s.pos >= len(s.events) {
		return logictrace.Event{}, false
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true
}

// Build implements the CLI stage-builder contract for the "logic2" stage
// name.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("logic2", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("logic2: expected exactly one capture directory argument")
	}
	src, err := Open(fs.Arg(0))
	if err != nil {
		return err
	}
	stack.Push(src)
	return nil
}

// vim: foldmethod=marker
