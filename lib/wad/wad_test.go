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

package wad

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esnand/estitle/lib/esformat"
)

const testTitle = 0x0001000048414141

func testMetadata(t *testing.T, sizes ...uint64) (ticket, tmd []byte) {
	t.Helper()
	tik, err := esformat.NewTicket(esformat.SigRSA2048, esformat.TicketBody{TitleID: testTitle})
	require.NoError(t, err)
	contents := make([]esformat.Content, len(sizes))
	for i, size := range sizes {
		contents[i] = esformat.Content{ID: uint32(i + 1), Index: uint16(i), Type: 1, Size: size}
	}
	m, err := esformat.NewTMD(esformat.TMDHeader{SignatureType: esformat.SigRSA2048, TitleID: testTitle}, contents)
	require.NoError(t, err)
	return tik.Raw(), m.Raw()
}

func TestRoundTrip(t *testing.T) {
	ticket, tmd := testMetadata(t, 100, 16, 0x41)
	certs := bytes.Repeat([]byte{0xcc}, 0x50)
	contents := [][]byte{
		bytes.Repeat([]byte{1}, 112),
		bytes.Repeat([]byte{2}, 16),
		bytes.Repeat([]byte{3}, 80),
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, certs, ticket, tmd)
	require.NoError(t, err)
	for _, c := range contents {
		// extra trailing bytes are left unread
		r := io.MultiReader(bytes.NewReader(c), bytes.NewReader(make([]byte, 16)))
		require.NoError(t, w.WriteContent(r))
	}
	assert.Error(t, w.WriteContent(bytes.NewReader(nil)))
	require.NoError(t, w.Close())
	assert.Zero(t, buf.Len()%Align)

	blob := buf.Bytes()
	assert.Equal(t, []byte{0, 0, 0, 0x20, 'I', 's', 0, 0}, blob[:8])
	assert.Equal(t, certs, blob[0x40:0x90])

	r, err := NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, TypeInstallable, r.Header.Type)
	// 112 + pad 16, then 16 + pad 48, then 80
	assert.Equal(t, uint32(128+64+80), r.Header.DataSize)
	assert.Equal(t, certs, r.CertChain)
	assert.Equal(t, ticket, r.Ticket)
	assert.Equal(t, tmd, r.TMD)
	assert.Empty(t, r.Footer)
	assert.Equal(t, uint64(testTitle), r.ParsedTMD().TitleID())
	for i, want := range contents {
		sr, err := r.Content(i)
		require.NoError(t, err)
		got, err := io.ReadAll(sr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Content(3)
	assert.Error(t, err)
}

func TestWriterShortContent(t *testing.T) {
	ticket, tmd := testMetadata(t, 32)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil, ticket, tmd)
	require.NoError(t, err)
	err = w.WriteContent(bytes.NewReader(make([]byte, 16)))
	assert.True(t, errors.Is(err, io.EOF))
	assert.Error(t, w.Close())
}

func TestReaderErrors(t *testing.T) {
	ticket, tmd := testMetadata(t, 64)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil, ticket, tmd)
	require.NoError(t, err)
	require.NoError(t, w.WriteContent(bytes.NewReader(make([]byte, 64))))
	require.NoError(t, w.Close())
	good := buf.Bytes()

	t.Run("Magic", func(t *testing.T) {
		bad := bytes.Clone(good)
		binary.BigEndian.PutUint32(bad[4:], 0x12345678)
		_, err := NewReader(bytes.NewReader(bad))
		assert.True(t, errors.Is(err, ErrNotWAD))
	})
	t.Run("HeaderSize", func(t *testing.T) {
		bad := bytes.Clone(good)
		binary.BigEndian.PutUint32(bad, 0x40)
		_, err := NewReader(bytes.NewReader(bad))
		assert.True(t, errors.Is(err, ErrNotWAD))
	})
	t.Run("Truncated", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(good[:0x100]))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
	t.Run("DataSize", func(t *testing.T) {
		bad := bytes.Clone(good)
		binary.BigEndian.PutUint32(bad[24:], 32)
		_, err := NewReader(bytes.NewReader(bad))
		assert.Error(t, err)
	})
	t.Run("Empty", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(nil))
		assert.Error(t, err)
	})
}
