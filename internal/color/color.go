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

// Package color centralizes the handful of highlighted labels the CLI
// prints, so the sink doesn't sprinkle color.New calls across main.go.
// This is the Go analogue of the source's always-on `colored` crate use
// (`"Error".red().bold()`); here it stays off unless stderr is a
// terminal, which fatih/color detects on its own.
package color

import "github.com/fatih/color"

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	okLabel    = color.New(color.FgGreen)
	warnLabel  = color.New(color.FgYellow)
)

// Error renders "Error" in bold red, matching the source's error prefix.
func Error() string {
	return errorLabel.Sprint("Error")
}

// OK renders s in green, used for a decoded payload line.
func OK(s string) string {
	return okLabel.Sprint(s)
}

// Warn renders s in yellow, used for non-fatal status lines.
func Warn(s string) string {
	return warnLabel.Sprint(s)
}

// vim: foldmethod=marker
