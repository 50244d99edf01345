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

// Stack is the pipeline-under-construction: a stack of Stages assembled
// one CLI token group at a time. Each stage builder pops the stage
// beneath it (after checking its Kind), wraps it, and pushes itself.
//
// Stack is only mutated during pipeline construction; once Finish
// returns, nothing further touches it.
type Stack struct {
	stages []Stage
}

// NewStack returns an empty pipeline stack.
func NewStack() *Stack {
	return &Stack{}
}

// Len reports how many stages remain on the stack.
func (s *Stack) Len() int {
	return len(s.stages)
}

// Push places a newly built stage on top of the stack.
func (s *Stack) Push(stage Stage) {
	s.stages = append(s.stages, stage)
}

// Top returns the stage currently on top of the stack without removing
// it, or nil if the stack is empty.
func (s *Stack) Top() Stage {
	if len(s.stages) == 0 {
		return nil
	}
	return s.stages[len(s.stages)-1]
}

// Pop removes and returns the stage on top of the stack.
func (s *Stack) Pop() Stage {
	if len(s.stages) == 0 {
		return nil
	}
	top := s.stages[len(s.stages)-1]
	s.stages = s.stages[:len(s.stages)-1]
	return top
}

// RequireKind pops the top of stack if and only if it advertises the
// wanted Kind. If the stack is empty or the top of stack has a different
// Kind, insert is invoked to auto-build the canonical prerequisite stage
// (for example usb/packet auto-inserts usb/byte); insert must itself push
// exactly one matching stage onto the stack, or return an error.
//
// This is the dynamic-type-check contract described for pipeline
// construction: builders can be chained from the CLI in any order, and a
// builder always gets an upstream stage of the Kind it expects, either
// because the user supplied one or because a canonical default was
// inserted on their behalf.
func (s *Stack) RequireKind(want Kind, insert func(*Stack) error) (Stage, error) {
	top := s.Top()
	if top == nil || top.Kind() != want {
		if insert == nil {
			if top == nil {
				return nil, ErrNoPrerequisite
			}
			return nil, &ErrKindMismatch{Expected: want, Actual: top.Kind()}
		}
		if err := insert(s); err != nil {
			return nil, err
		}
		top = s.Top()
		if top == nil {
			return nil, ErrNoPrerequisite
		}
	}
	if top.Kind() != want {
		return nil, &ErrKindMismatch{Expected: want, Actual: top.Kind()}
	}
	return s.Pop(), nil
}

// Finish validates that construction produced exactly one stage and
// returns it.
func (s *Stack) Finish() (Stage, error) {
	switch len(s.stages) {
	case 0:
		return nil, ErrEmptyPipeline
	case 1:
		return s.stages[0], nil
	default:
		return nil, ErrUnfinishedPipeline
	}
}

// vim: foldmethod=marker
