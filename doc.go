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

// Package logictrace contains the fundamental types and helpers used to
// decode logic-analyzer captures into a chain of progressively richer
// protocol events.
//
// The interfaces here are designed to mirror and behave in a way that is
// not surprising to a Go developer building on top of a pull-based Reader:
// a pipeline is a stack of Stages, each one consuming the Stage below it.
// Because the set of stages is chosen at run time (from a command line),
// stage construction validates that the Kind produced by the stage beneath
// it matches the Kind the new stage expects to consume, the same way
// sdr.Reader implementations are checked for a matching SampleFormat before
// being combined.
//
// Every Stage yields (timestamp, payload, error) triples, lazily, one at a
// time; the source stage at the bottom of the stack is the only stage that
// performs blocking I/O, and it is the clock the rest of the pipeline runs
// on.
package logictrace

// vim: foldmethod=marker
