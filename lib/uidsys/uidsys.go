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

// Package uidsys keeps the registry assigning a small user ID to every title
// that has ever been installed.
package uidsys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"
)

const (
	FirstUID  uint32 = 0x1000
	entrySize        = 12

	systemMenu uint64 = 0x0000000100000002
)

type entry struct {
	titleID uint64
	uid     uint32
}

type UIDSys struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	entries []entry
}

// Open loads the registry at filePath. An empty or missing registry is seeded
// with the system menu.
func Open(fs afero.Fs, filePath string) (*UIDSys, error) {
	u := &UIDSys{fs: fs, path: filePath}
	blob, err := afero.ReadFile(fs, filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading uid.sys: %w", err)
	}
	for len(blob) >= entrySize {
		e := entry{
			titleID: binary.BigEndian.Uint64(blob),
			uid:     binary.BigEndian.Uint32(blob[8:]),
		}
		blob = blob[entrySize:]
		if e.titleID == 0 && e.uid == 0 {
			break
		}
		u.entries = append(u.entries, e)
	}
	if len(u.entries) == 0 {
		if _, err := u.GetOrInsert(systemMenu); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// UID returns the uid assigned to a title, or 0 if there is none
func (u *UIDSys) UID(titleID uint64) uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lookup(titleID)
}

func (u *UIDSys) lookup(titleID uint64) uint32 {
	for _, e := range u.entries {
		if e.titleID == titleID {
			return e.uid
		}
	}
	return 0
}

// NextUID returns the uid the next new title would receive
func (u *UIDSys) NextUID() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.next()
}

func (u *UIDSys) next() uint32 {
	var highest uint32
	for _, e := range u.entries {
		if e.uid > highest {
			highest = e.uid
		}
	}
	if highest == 0 {
		return FirstUID
	}
	return highest + 1
}

// GetOrInsert returns the uid of a title, assigning and persisting a new one
// if the title is not registered yet.
func (u *UIDSys) GetOrInsert(titleID uint64) (uint32, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if uid := u.lookup(titleID); uid != 0 {
		return uid, nil
	}
	e := entry{titleID: titleID, uid: u.next()}
	var rec [entrySize]byte
	binary.BigEndian.PutUint64(rec[:], e.titleID)
	binary.BigEndian.PutUint32(rec[8:], e.uid)
	if err := u.fs.MkdirAll(path.Dir(u.path), 0755); err != nil {
		return 0, err
	}
	f, err := u.fs.OpenFile(u.path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening uid.sys: %w", err)
	}
	// anything past the last loaded record is torn or unreachable
	end := int64(len(u.entries)) * entrySize
	if err := f.Truncate(end); err != nil {
		f.Close()
		return 0, fmt.Errorf("truncating uid.sys: %w", err)
	}
	if _, err := f.WriteAt(rec[:], end); err != nil {
		f.Close()
		return 0, fmt.Errorf("writing uid.sys: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	u.entries = append(u.entries, e)
	return e.uid, nil
}

// Len returns the number of registered titles
func (u *UIDSys) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}
