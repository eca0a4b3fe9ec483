// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package pipeline

import "log"

// Callbacks is consumed from the embedding UI or CLI layer. The pipeline
// calls these between iterations and never blocks waiting on them;
// IsCancelled is the cooperative cancellation poll.
type Callbacks interface {
	OnStep(msg string)
	OnLog(msg, level string)
	OnProgress(done, total int, msg string)
	IsCancelled() bool
	OnError(title, detail string)
}

// NopCallbacks ignores every event and never cancels.
type NopCallbacks struct{}

func (NopCallbacks) OnStep(string)              {}
func (NopCallbacks) OnLog(string, string)       {}
func (NopCallbacks) OnProgress(int, int, string) {}
func (NopCallbacks) IsCancelled() bool          { return false }
func (NopCallbacks) OnError(string, string)     {}

// LogCallbacks writes every event to the standard logger, for CLI use.
type LogCallbacks struct{}

func (LogCallbacks) OnStep(msg string) {
	log.Printf("%s", msg)
}

func (LogCallbacks) OnLog(msg, level string) {
	log.Printf("[%s] %s", level, msg)
}

func (LogCallbacks) OnProgress(done, total int, msg string) {
	log.Printf("[%d/%d] %s", done, total, msg)
}

func (LogCallbacks) IsCancelled() bool { return false }

func (LogCallbacks) OnError(title, detail string) {
	log.Printf("error: %s: %s", title, detail)
}
