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
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAtMost(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 10)
	c := NewHashing(bytes.NewReader(data), sha1.New())
	buf := make([]byte, 32)
	n, err := c.ReadAtMost(buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	n, err = c.ReadAtMost(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	n, err = c.ReadAtMost(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(40), c.N)
	want := sha1.Sum(data)
	assert.Equal(t, want[:], c.H.Sum(nil))
}
