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

package es

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/titlecrypt"
)

const (
	testRoot     = "/nand"
	testTitle    = uint64(0x0001000048414141)
	testNGID     = uint32(0xdeadbeef)
	testTitleDir = "/nand/title/00010000/48414141"
)

// failFs injects errors into selected operations of an underlying Fs
type failFs struct {
	afero.Fs
	failRename    func(oldname, newname string) bool
	failRemoveAll func(name string) bool
	failStat      func(name string) bool
}

func (f *failFs) Stat(name string) (os.FileInfo, error) {
	if f.failStat != nil && f.failStat(name) {
		return nil, &os.PathError{Op: "stat", Path: name, Err: syscall.EACCES}
	}
	return f.Fs.Stat(name)
}

func (f *failFs) Rename(oldname, newname string) error {
	if f.failRename != nil && f.failRename(oldname, newname) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EIO}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *failFs) RemoveAll(name string) error {
	if f.failRemoveAll != nil && f.failRemoveAll(name) {
		return &os.PathError{Op: "removeall", Path: name, Err: syscall.EACCES}
	}
	return f.Fs.RemoveAll(name)
}

func newTestDevice(t *testing.T, fs afero.Fs, mods ...func(*Options)) *Device {
	t.Helper()
	logger := zerolog.Nop()
	opts := Options{
		Fs:     fs,
		Root:   testRoot,
		Keys:   DeviceKeys{NGID: testNGID},
		Logger: &logger,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func makeTicket(t *testing.T, titleID uint64, deviceID uint32, key titlecrypt.Key) []byte {
	t.Helper()
	body := esformat.TicketBody{
		TicketID: 0x0001020304050607,
		DeviceID: deviceID,
		TitleID:  titleID,
		TitleKey: key,
	}
	tik, err := esformat.NewTicket(esformat.SigRSA2048, body)
	require.NoError(t, err)
	return tik.Raw()
}

func makeTMD(t *testing.T, titleID uint64, contents ...esformat.Content) []byte {
	t.Helper()
	tmd, err := esformat.NewTMD(esformat.TMDHeader{
		SignatureType: esformat.SigRSA2048,
		TitleID:       titleID,
		TitleVersion:  1,
	}, contents)
	require.NoError(t, err)
	return tmd.Raw()
}

func contentFor(id uint32, index uint16, shared bool, plain []byte) esformat.Content {
	c := esformat.Content{ID: id, Index: index, Size: uint64(len(plain)), SHA1: titlecrypt.Sum(plain)}
	if shared {
		c.Type = 0x8001
	} else {
		c.Type = 0x0001
	}
	return c
}

func encryptContent(t *testing.T, key titlecrypt.Key, index uint16, plain []byte) []byte {
	t.Helper()
	padded := make([]byte, titlecrypt.AlignUp(len(plain), titlecrypt.BlockSize))
	copy(padded, plain)
	iv := titlecrypt.ContentIV(index)
	ct, err := titlecrypt.Encrypt(key[:], iv[:], padded)
	require.NoError(t, err)
	return ct
}

// importContent runs one AddContentStart/Data/Finish cycle
func importContent(t *testing.T, d *Device, titleID uint64, id uint32, ciphertext []byte) error {
	t.Helper()
	h, err := d.AddContentStart(titleID, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h)
	// split the data to exercise buffering
	half := len(ciphertext) / 2
	require.NoError(t, d.AddContentData(h, ciphertext[:half]))
	require.NoError(t, d.AddContentData(h, ciphertext[half:]))
	return d.AddContentFinish(h)
}

type testContent struct {
	desc  esformat.Content
	plain []byte
}

// installTitle imports a complete title with a zero title key
func installTitle(t *testing.T, d *Device, titleID uint64, contents ...testContent) {
	t.Helper()
	var key titlecrypt.Key
	require.NoError(t, d.AddTicket(makeTicket(t, titleID, 0, key)))
	descs := make([]esformat.Content, len(contents))
	for i, c := range contents {
		descs[i] = c.desc
	}
	require.NoError(t, d.AddTitleStart(makeTMD(t, titleID, descs...)))
	for _, c := range contents {
		require.NoError(t, importContent(t, d, titleID, c.desc.ID, encryptContent(t, key, c.desc.Index, c.plain)))
	}
	require.NoError(t, d.AddTitleFinish())
}

func newTestContent(id uint32, index uint16, shared bool, plain []byte) testContent {
	return testContent{desc: contentFor(id, index, shared, plain), plain: plain}
}

func assertStatus(t *testing.T, err error, status *Status) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, status), "expected %q, got %v", status, err)
	assert.Equal(t, status.Code(), CodeOf(err))
}

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}
