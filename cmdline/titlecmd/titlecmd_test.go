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

package titlecmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esnand/estitle/es"
	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/titlecrypt"
	"github.com/esnand/estitle/lib/wad"
)

const testTitle = 0x0001000048414141

func newDevice(t *testing.T, fs afero.Fs) *es.Device {
	t.Helper()
	logger := zerolog.Nop()
	d, err := es.New(es.Options{Fs: fs, Root: "/nand", Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// buildWAD packages plaintext contents encrypted with a zero title key
func buildWAD(t *testing.T, corrupt bool, plains ...[]byte) []byte {
	t.Helper()
	tik, err := esformat.NewTicket(esformat.SigRSA2048, esformat.TicketBody{TitleID: testTitle})
	require.NoError(t, err)
	contents := make([]esformat.Content, len(plains))
	for i, plain := range plains {
		contents[i] = esformat.Content{
			ID:    uint32(0x10 + i),
			Index: uint16(i),
			Type:  1,
			Size:  uint64(len(plain)),
			SHA1:  titlecrypt.Sum(plain),
		}
	}
	tmd, err := esformat.NewTMD(esformat.TMDHeader{SignatureType: esformat.SigRSA2048, TitleID: testTitle, TitleVersion: 3}, contents)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := wad.NewWriter(&buf, []byte("certificate chain"), tik.Raw(), tmd.Raw())
	require.NoError(t, err)
	var key titlecrypt.Key
	for i, plain := range plains {
		padded := make([]byte, titlecrypt.AlignUp(len(plain), titlecrypt.BlockSize))
		copy(padded, plain)
		if corrupt {
			padded[0] ^= 0xff
		}
		iv := titlecrypt.ContentIV(uint16(i))
		ct, err := titlecrypt.Encrypt(key[:], iv[:], padded)
		require.NoError(t, err)
		require.NoError(t, w.WriteContent(bytes.NewReader(ct)))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestInstallExportRoundTrip(t *testing.T) {
	big := make([]byte, chunkSize*2+100)
	for i := range big {
		big[i] = byte(i % 251)
	}
	original := buildWAD(t, false, []byte("hello, world"), big)

	fs := afero.NewMemMapFs()
	d := newDevice(t, fs)
	r, err := wad.NewReader(bytes.NewReader(original))
	require.NoError(t, err)
	require.NoError(t, InstallWAD(d, r))
	stored, err := afero.ReadFile(fs, "/nand/title/00010000/48414141/content/00000011.app")
	require.NoError(t, err)
	assert.Equal(t, big, stored)

	var exported bytes.Buffer
	require.NoError(t, ExportWAD(d, testTitle, []byte("certificate chain"), &exported))
	assert.Equal(t, original, exported.Bytes())
	assert.Equal(t, "idle", d.State())

	var listing strings.Builder
	require.NoError(t, ListTitles(d, &listing))
	assert.Equal(t, "0001000048414141  0001000048414141 v3     2/2 contents  128 KiB\n", listing.String())
	listing.Reset()
	require.NoError(t, ListTickets(d, &listing))
	assert.Equal(t, "0001000048414141\n", listing.String())
}

func TestInstallCancelsOnFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := newDevice(t, fs)
	r, err := wad.NewReader(bytes.NewReader(buildWAD(t, true, []byte("hello, world"))))
	require.NoError(t, err)
	err = InstallWAD(d, r)
	assert.True(t, errors.Is(err, es.ErrHashMismatch))
	assert.Equal(t, "idle", d.State())
	imports, err := d.TitleImports()
	require.NoError(t, err)
	assert.Empty(t, imports)
	titles, err := d.InstalledTitles()
	require.NoError(t, err)
	assert.Empty(t, titles)
}

func TestExportMissingTitle(t *testing.T) {
	d := newDevice(t, afero.NewMemMapFs())
	var out bytes.Buffer
	assert.Error(t, ExportWAD(d, testTitle, nil, &out))
	assert.Zero(t, out.Len())
	assert.Equal(t, "idle", d.State())
}
