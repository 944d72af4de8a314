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

package uidsys

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAndInsert(t *testing.T) {
	fs := afero.NewMemMapFs()
	u, err := Open(fs, "/sys/uid.sys")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Len())
	assert.Equal(t, FirstUID, u.UID(systemMenu))
	assert.Equal(t, FirstUID+1, u.NextUID())

	uid, err := u.GetOrInsert(0x0001000048414141)
	require.NoError(t, err)
	assert.Equal(t, FirstUID+1, uid)
	uid, err = u.GetOrInsert(0x0001000048414141)
	require.NoError(t, err)
	assert.Equal(t, FirstUID+1, uid)
	assert.Equal(t, uint32(0), u.UID(0x0001000048414142))

	blob, err := afero.ReadFile(fs, "/sys/uid.sys")
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0x10, 0,
		0, 1, 0, 0, 0x48, 0x41, 0x41, 0x41, 0, 0, 0x10, 1,
	}, blob)

	reopened, err := Open(fs, "/sys/uid.sys")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, FirstUID+1, reopened.UID(0x0001000048414141))
}

func TestTornRecord(t *testing.T) {
	const title = uint64(0x0001000048414141)
	filesystems := map[string]afero.Fs{
		"Mem": afero.NewMemMapFs(),
		"OS":  afero.NewBasePathFs(afero.NewOsFs(), t.TempDir()),
	}
	for name, fs := range filesystems {
		t.Run(name, func(t *testing.T) {
			_, err := Open(fs, "/sys/uid.sys")
			require.NoError(t, err)
			f, err := fs.OpenFile("/sys/uid.sys", os.O_WRONLY|os.O_APPEND, 0644)
			require.NoError(t, err)
			_, err = f.Write([]byte{0, 1, 0, 0, 0x48})
			require.NoError(t, err)
			require.NoError(t, f.Close())

			u, err := Open(fs, "/sys/uid.sys")
			require.NoError(t, err)
			assert.Equal(t, 1, u.Len())
			uid, err := u.GetOrInsert(title)
			require.NoError(t, err)
			assert.Equal(t, FirstUID+1, uid)
			blob, err := afero.ReadFile(fs, "/sys/uid.sys")
			require.NoError(t, err)
			assert.Len(t, blob, 2*entrySize)

			reopened, err := Open(fs, "/sys/uid.sys")
			require.NoError(t, err)
			assert.Equal(t, 2, reopened.Len())
			assert.Equal(t, FirstUID+1, reopened.UID(title))
		})
	}
}
