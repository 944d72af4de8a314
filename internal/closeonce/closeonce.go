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

// Package closeonce runs a teardown function at most once and remembers its
// result for every later caller.
package closeonce

import (
	"sync"
	"sync/atomic"
)

type Closed struct {
	done atomic.Bool
	mu   sync.Mutex
	err  error
}

func (o *Closed) Closed() bool {
	return o.done.Load()
}

func (o *Closed) Close(f func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done.Load() {
		return o.err
	}
	if f != nil {
		o.err = f()
	}
	o.done.Store(true)
	return o.err
}
