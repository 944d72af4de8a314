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

// Package sharedcontent maintains the index of contents that are stored once
// and referenced by hash from any number of titles.
//
// The index is an append-only file of 28-byte records: an 8 character
// lowercase hex file name followed by the 20-byte SHA-1 of the content.
package sharedcontent

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"

	"github.com/esnand/estitle/lib/titlecrypt"
)

const entrySize = 28

type entry struct {
	id   [8]byte
	sha1 titlecrypt.Hash
}

// Map is safe for concurrent use. The index file is re-read on every call so
// that writers outside this process are observed.
type Map struct {
	mu      sync.Mutex
	fs      afero.Fs
	dir     string
	mapPath string
}

// New returns a map rooted at dir, typically <root>/shared1
func New(fs afero.Fs, dir string) *Map {
	return &Map{
		fs:      fs,
		dir:     dir,
		mapPath: path.Join(dir, "content.map"),
	}
}

func (m *Map) load() ([]entry, error) {
	blob, err := afero.ReadFile(m.fs, m.mapPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading shared content map: %w", err)
	}
	// a torn trailing record is ignored
	entries := make([]entry, len(blob)/entrySize)
	for i := range entries {
		rec := blob[i*entrySize:]
		copy(entries[i].id[:], rec[:8])
		copy(entries[i].sha1[:], rec[8:entrySize])
	}
	return entries, nil
}

func (m *Map) filename(id [8]byte) string {
	return path.Join(m.dir, string(id[:])+".app")
}

func find(entries []entry, sha1 titlecrypt.Hash) (entry, bool) {
	for _, e := range entries {
		if e.sha1 == sha1 {
			return e, true
		}
	}
	return entry{}, false
}

// Lookup returns the path of the shared content with the given hash
func (m *Map) Lookup(sha1 titlecrypt.Hash) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.load()
	if err != nil {
		return "", false, err
	}
	e, ok := find(entries, sha1)
	if !ok {
		return "", false, nil
	}
	return m.filename(e.id), true, nil
}

// Add returns the path for a shared content, allocating the next sequential
// file name and appending it to the index if the hash is not known yet. The
// content file itself is not created.
func (m *Map) Add(sha1 titlecrypt.Hash) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.load()
	if err != nil {
		return "", err
	}
	if e, ok := find(entries, sha1); ok {
		return m.filename(e.id), nil
	}
	var e entry
	copy(e.id[:], fmt.Sprintf("%08x", len(entries)))
	e.sha1 = sha1
	if err := m.fs.MkdirAll(m.dir, 0755); err != nil {
		return "", err
	}
	f, err := m.fs.OpenFile(m.mapPath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return "", fmt.Errorf("opening shared content map: %w", err)
	}
	// a torn record is dropped so the new one lands on a record boundary
	end := int64(len(entries)) * entrySize
	if err := f.Truncate(end); err != nil {
		f.Close()
		return "", err
	}
	var rec [entrySize]byte
	copy(rec[:], e.id[:])
	copy(rec[len(e.id):], e.sha1[:])
	if _, err := f.WriteAt(rec[:], end); err != nil {
		f.Close()
		return "", fmt.Errorf("appending to shared content map: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return m.filename(e.id), nil
}

// Hashes returns every hash in the index, in allocation order
func (m *Map) Hashes() ([]titlecrypt.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.load()
	if err != nil {
		return nil, err
	}
	hashes := make([]titlecrypt.Hash, len(entries))
	for i, e := range entries {
		hashes[i] = e.sha1
	}
	return hashes, nil
}
