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

package sharedcontent

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esnand/estitle/lib/titlecrypt"
)

func TestAddAndLookup(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/nand/shared1")
	h1 := titlecrypt.Sum([]byte("one"))
	h2 := titlecrypt.Sum([]byte("two"))

	_, ok, err := m.Lookup(h1)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := m.Add(h1)
	require.NoError(t, err)
	assert.Equal(t, "/nand/shared1/00000000.app", p)
	p, err = m.Add(h2)
	require.NoError(t, err)
	assert.Equal(t, "/nand/shared1/00000001.app", p)

	// adding a known hash returns the existing name and leaves the index alone
	p, err = m.Add(h1)
	require.NoError(t, err)
	assert.Equal(t, "/nand/shared1/00000000.app", p)
	blob, err := afero.ReadFile(fs, "/nand/shared1/content.map")
	require.NoError(t, err)
	assert.Len(t, blob, 2*entrySize)
	assert.Equal(t, "00000001", string(blob[entrySize:entrySize+8]))
	assert.Equal(t, h2[:], blob[entrySize+8:])

	// a second map over the same tree sees the same entries
	other := New(fs, "/nand/shared1")
	p, ok, err = other.Lookup(h2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/nand/shared1/00000001.app", p)
	hashes, err := other.Hashes()
	require.NoError(t, err)
	assert.Equal(t, []titlecrypt.Hash{h1, h2}, hashes)
}

func TestTornRecord(t *testing.T) {
	filesystems := map[string]afero.Fs{
		"Mem": afero.NewMemMapFs(),
		"OS":  afero.NewBasePathFs(afero.NewOsFs(), t.TempDir()),
	}
	for name, fs := range filesystems {
		t.Run(name, func(t *testing.T) {
			m := New(fs, "/shared1")
			h1 := titlecrypt.Sum([]byte("one"))
			_, err := m.Add(h1)
			require.NoError(t, err)
			f, err := fs.OpenFile("/shared1/content.map", os.O_WRONLY|os.O_APPEND, 0644)
			require.NoError(t, err)
			_, err = f.Write([]byte("0000"))
			require.NoError(t, err)
			require.NoError(t, f.Close())

			hashes, err := m.Hashes()
			require.NoError(t, err)
			assert.Len(t, hashes, 1)
			h2 := titlecrypt.Sum([]byte("two"))
			p, err := m.Add(h2)
			require.NoError(t, err)
			assert.Equal(t, "/shared1/00000001.app", p)
			blob, err := afero.ReadFile(fs, "/shared1/content.map")
			require.NoError(t, err)
			assert.Len(t, blob, 2*entrySize)

			p, ok, err := m.Lookup(h2)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "/shared1/00000001.app", p)
			p, ok, err = m.Lookup(h1)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "/shared1/00000000.app", p)
		})
	}
}
