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

// Package atomicfile writes a file under a temporary name and renames it into
// place on Commit, so readers never observe a partial file.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

type AtomicFile interface {
	io.WriteCloser
	// Commit renames the file into place. Close after Commit is a no-op.
	Commit() error
}

type atomicFile struct {
	fs       afero.Fs
	name     string
	tempfile afero.File
}

// New starts writing name on fs. The parent directory is created if needed.
func New(fs afero.Fs, name string) (AtomicFile, error) {
	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tempfile, err := afero.TempFile(fs, dir, path.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{fs: fs, name: name, tempfile: tempfile}, nil
}

// WriteFile atomically replaces name with data
func WriteFile(fs afero.Fs, name string, data []byte) error {
	f, err := New(fs, name)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}

func (f *atomicFile) Write(d []byte) (int, error) {
	if f.tempfile == nil {
		return 0, os.ErrClosed
	}
	return f.tempfile.Write(d)
}

// Close discards the file if it was not committed
func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	f.fs.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	_ = f.fs.Chmod(f.tempfile.Name(), 0644)
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	// rename can't overwrite on windows
	if err := f.fs.Remove(f.name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := f.fs.Rename(f.tempfile.Name(), f.name); err != nil {
		f.fs.Remove(f.tempfile.Name())
		f.tempfile = nil
		return err
	}
	f.tempfile = nil
	return nil
}

type nopAtomic struct {
	io.Writer
	closer io.Closer
}

func (a nopAtomic) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a nopAtomic) Commit() error {
	return a.Close()
}

// WriteAny picks the best strategy for writing to the given path on the host
// filesystem. "-" writes to stdout, pipes and devices are written directly,
// otherwise write-rename.
func WriteAny(name string) (AtomicFile, error) {
	if name == "-" {
		return nopAtomic{Writer: os.Stdout}, nil
	}
	if stat, err := os.Stat(name); err == nil && !stat.Mode().IsRegular() {
		f, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		return nopAtomic{Writer: f, closer: f}, nil
	}
	return New(afero.NewOsFs(), name)
}
