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

// Command logictrace assembles a decoding pipeline from a chain of
// stage names given on the command line and runs it to completion,
// printing each decoded event (or the diagnostic for a decode error)
// as it is pulled.
//
// Usage:
//
//	logictrace vcd capture.vcd serial --tx 0 --rx 1 -b 115200
//	logictrace logic2 ./capture usb::signal --dp 0 --dm 1 usb::device
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	goserial "go.bug.st/serial"
	"gopkg.in/yaml.v3"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/capture/logic2"
	"github.com/ithinuel/logic-trace-parser/capture/logicbin"
	"github.com/ithinuel/logic-trace-parser/capture/vcd"
	"github.com/ithinuel/logic-trace-parser/internal/color"
	"github.com/ithinuel/logic-trace-parser/serial"
	"github.com/ithinuel/logic-trace-parser/spi"
	"github.com/ithinuel/logic-trace-parser/spiflash"
	"github.com/ithinuel/logic-trace-parser/usb/byte"
	"github.com/ithinuel/logic-trace-parser/usb/device"
	"github.com/ithinuel/logic-trace-parser/usb/packet"
	"github.com/ithinuel/logic-trace-parser/usb/protocol"
	"github.com/ithinuel/logic-trace-parser/usb/signal"
	"github.com/ithinuel/logic-trace-parser/wizfi310"
)

// stageNames lists the tokens the argument tokenizer recognizes as the
// start of a new stage group, in the same order spec.md enumerates them.
var stageNames = []string{
	"vcd", "logic", "logic2",
	"spi", "spif", "serial", "wizfi310",
	"usb::signal", "usb::byte", "usb::packet", "usb::protocol", "usb::device",
}

var registry = map[string]func(*logictrace.Stack, []string) error{
	"vcd":            vcd.Build,
	"logic":          logicbin.Build,
	"logic2":         logic2.Build,
	"spi":            spi.Build,
	"spif":           spiflash.Build,
	"serial":         serial.Build,
	"wizfi310":       wizfi310.Build,
	"usb::signal":    signal.Build,
	"usb::byte":      usbbyte.Build,
	"usb::packet":    packet.Build,
	"usb::protocol":  protocol.Build,
	"usb::device":    device.Build,
}

func isStageName(s string) bool {
	for _, n := range stageNames {
		if n == s {
			return true
		}
	}
	return false
}

// tokenize groups argv into (stageName, args) pairs: every token up to
// the next recognized stage name belongs to the preceding one, exactly
// as spec.md §6 describes.
func tokenize(argv []string) ([]string, [][]string, error) {
	var names []string
	var groups [][]string

	i := 0
	for i < len(argv) {
		name := argv[i]
		if !isStageName(name) {
			return nil, nil, fmt.Errorf("unrecognized stage %q", name)
		}
		i++
		start := i
		for i < len(argv) && !isStageName(argv[i]) {
			i++
		}
		names = append(names, name)
		groups = append(groups, argv[start:i])
	}
	return names, groups, nil
}

func main() {
	argv := os.Args[1:]

	verbose := false
	devicePort := ""
	filtered := argv[:0:0]
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-v", "--verbose":
			verbose = true
		case "--device":
			if i+1 >= len(argv) {
				log.Fatal("--device requires a serial port path")
			}
			devicePort = argv[i+1]
			i++
		default:
			filtered = append(filtered, argv[i])
		}
	}
	argv = filtered

	if len(argv) == 0 && devicePort == "" {
		fmt.Fprintf(os.Stderr, "usage: logictrace <stage> [flags]... [<stage> [flags]...]\n")
		os.Exit(1)
	}

	stack := logictrace.NewStack()

	if devicePort != "" {
		port, err := openLiveSerial(devicePort)
		if err != nil {
			log.Fatalf("logictrace: %v", err)
		}
		defer port.port.Close()
		stack.Push(port)
	}

	names, groups, err := tokenize(argv)
	if err != nil {
		log.Fatalf("logictrace: %v", err)
	}
	for i, name := range names {
		build := registry[name]
		if build == nil {
			log.Fatalf("logictrace: stage %q has no registered builder", name)
		}
		if err := build(stack, groups[i]); err != nil {
			log.Fatalf("logictrace: %s: %v", name, err)
		}
	}

	top, err := stack.Finish()
	if err != nil {
		log.Fatalf("logictrace: %v", err)
	}

	if verbose {
		dumpConfig(names, top.Kind())
	}

	run(top)
}

// dumpConfig writes the assembled stage chain to stderr as YAML, the
// one diagnostic artifact -v adds beyond the per-event output.
func dumpConfig(names []string, finalKind logictrace.Kind) {
	doc := struct {
		Stages []string `yaml:"stages"`
		Output string   `yaml:"output"`
	}{Stages: names, Output: finalKind.String()}

	b, err := yaml.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", color.Error(), err)
		return
	}
	fmt.Fprint(os.Stderr, color.Warn(string(b)))
}

// run drains stage to completion, printing each event and reporting
// progress on stderr every few thousand events when attached to a
// terminal. Decode errors are printed and do not stop the pipeline, per
// spec.md §7: only construction-time errors are fatal.
func run(stage logictrace.Stage) {
	width := terminalWidth()
	n := 0
	start := time.Now()

	for {
		ev, ok := stage.Next()
		if !ok {
			break
		}
		n++
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", color.Error(), ev.Err)
			continue
		}
		fmt.Printf("%.9f %s\n", ev.Timestamp, color.OK(fmt.Sprint(ev.Payload)))

		if width > 0 && n%5000 == 0 {
			status := fmt.Sprintf("\r%d events in %s", n, time.Since(start).Round(time.Millisecond))
			if len(status) > width {
				status = status[:width]
			}
			fmt.Fprint(os.Stderr, status)
		}
	}
	if width > 0 {
		fmt.Fprintln(os.Stderr)
	}
}

// liveSerial adapts a live go.bug.st/serial port into a
// logictrace.Stage of Kind KindSerialEvent, bypassing the Sample-level
// decoders entirely: every byte read off the wire becomes an Rx event
// timestamped against the moment the port was opened. It is meant for
// smoke-testing the decoders that sit on top of serial.Event (wizfi310,
// in particular) against real hardware without first capturing a VCD.
type liveSerial struct {
	port  goserial.Port
	start time.Time
	buf   [1]byte
}

func openLiveSerial(path string) (*liveSerial, error) {
	port, err := goserial.Open(path, &goserial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &liveSerial{port: port, start: time.Now()}, nil
}

func (l *liveSerial) Kind() logictrace.Kind { return logictrace.KindSerialEvent }

func (l *liveSerial) Next() (logictrace.Event, bool) {
	n, err := l.port.Read(l.buf[:])
	if err != nil {
		return logictrace.Event{}, false
	}
	if n == 0 {
		return logictrace.Event{}, false
	}
	ts := time.Since(l.start).Seconds()
	return logictrace.Event{Timestamp: ts, Payload: serial.Event{Type: serial.Rx, Byte: l.buf[0]}}, true
}

// vim: foldmethod=marker
