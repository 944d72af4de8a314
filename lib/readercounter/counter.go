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

package readercounter

import (
	"hash"
	"io"
)

// Wraps a Reader and counts how many bytes are read from it, optionally
// feeding everything read into a digest
type ReaderCounter struct {
	R io.Reader // underlying Reader
	N int64     // number of bytes read
	H hash.Hash // receives every byte read, if set
}

func New(r io.Reader) *ReaderCounter {
	return &ReaderCounter{R: r}
}

// NewHashing returns a counter that also digests the stream with h
func NewHashing(r io.Reader, h hash.Hash) *ReaderCounter {
	return &ReaderCounter{R: r, H: h}
}

func (c *ReaderCounter) Read(d []byte) (int, error) {
	n, err := c.R.Read(d)
	c.N += int64(n)
	if c.H != nil && n > 0 {
		c.H.Write(d[:n])
	}
	return n, err
}

// ReadAtMost fills up to len(d) bytes, stopping early only at end of stream
func (c *ReaderCounter) ReadAtMost(d []byte) (int, error) {
	n, err := io.ReadFull(c, d)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return n, err
}
