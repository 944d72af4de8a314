/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package eslog

import (
	"time"

	"github.com/rs/zerolog"
)

type AccessLogCallback func(*zerolog.Event)

// Request tracks a single device request so that a summary entry can be
// emitted when it completes
type Request struct {
	logger    zerolog.Logger
	name      string
	now       func() time.Time
	start     time.Time
	callbacks []AccessLogCallback
	dontLog   bool
}

type RequestOption func(*Request)

// WithClock replaces time.Now for measuring request duration
func WithClock(now func() time.Time) RequestOption {
	return func(r *Request) { r.now = now }
}

// StartRequest begins tracking a request named name. Entries logged through
// Logger carry the request name.
func StartRequest(logger zerolog.Logger, name string, opts ...RequestOption) *Request {
	r := &Request{name: name, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	r.logger = logger.With().Str("req", name).Logger()
	r.start = r.now()
	return r
}

// Logger returns the logger scoped to this request
func (r *Request) Logger() *zerolog.Logger {
	return &r.logger
}

// AppendAccessLog adds a callback which will be invoked to amend the summary
// entry with additional fields
func (r *Request) AppendAccessLog(f AccessLogCallback) {
	r.callbacks = append(r.callbacks, f)
}

// DontLog suppresses the summary entry
func (r *Request) DontLog() {
	r.dontLog = true
}

// Finish emits the summary entry with the result code of the request.
// Failures are logged at info level and successes at debug, since a busy
// guest issues thousands of data requests per title.
func (r *Request) Finish(code int32) {
	if r.dontLog {
		return
	}
	level := zerolog.DebugLevel
	if code < 0 {
		level = zerolog.InfoLevel
	}
	ev := r.logger.WithLevel(level).
		Int32("rc", code).
		Dur("dur", r.now().Sub(r.start))
	for _, cb := range r.callbacks {
		cb(ev)
	}
	ev.Send()
}
