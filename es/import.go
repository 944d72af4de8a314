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
	"bytes"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/esnand/estitle/lib/atomicfile"
	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
	"github.com/esnand/estitle/lib/titlecrypt"
)

type importState struct {
	tmd     *esformat.TMD
	session string
	log     zerolog.Logger
	// active is the content between AddContentStart and AddContentFinish
	active *stagedContent
}

type stagedContent struct {
	id  uint32
	buf bytes.Buffer
}

func (*importState) name() string { return "importing" }

// AddTMD sets the TMD of the title being imported
func (d *Device) AddTMD(raw []byte) (err error) {
	const op = "AddTMD"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setImportTMD(op, raw)
}

// AddTitleStart begins importing the title described by a TMD. No files are
// written until contents are finished.
func (d *Device) AddTitleStart(raw []byte) (err error) {
	const op = "AddTitleStart"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setImportTMD(op, raw)
}

func (d *Device) setImportTMD(op string, raw []byte) error {
	if err := d.checkOpen(op); err != nil {
		return err
	}
	var prev *importState
	switch st := d.state.(type) {
	case *exportState:
		return fail(op, ErrParam, errors.New("an export is in progress"))
	case *importState:
		if st.active != nil {
			return fail(op, ErrParam, fmt.Errorf("content %08x is still open", st.active.id))
		}
		prev = st
	}
	tmd, err := esformat.ParseTMD(bytes.Clone(raw))
	if err != nil {
		d.log.Error().Err(err).Int("size", len(raw)).Msg("invalid TMD while adding title")
		return fail(op, ErrInvalidTMD, err)
	}
	if err := d.verifier.VerifyTMD(tmd); err != nil {
		return fail(op, ErrInvalidTMD, err)
	}
	titleID := tmd.TitleID()
	d.recordUID(titleID)
	if prev != nil && prev.tmd.TitleID() != titleID {
		// the earlier import is replaced, so its staged contents are orphaned
		if err := d.fs.RemoveAll(d.paths.ImportDir(prev.tmd.TitleID())); err != nil {
			prev.log.Warn().Err(err).Msg("unable to remove replaced import")
		}
		prev = nil
	}
	st := &importState{tmd: tmd}
	if prev != nil {
		st.session = prev.session
	} else {
		st.session = uuid.NewString()
	}
	st.log = d.log.With().
		Str("session", st.session).
		Str("title", nandpath.FormatTitleID(titleID)).
		Logger()
	d.state = st
	st.log.Info().
		Int("contents", tmd.NumContents()).
		Uint16("version", tmd.TitleVersion()).
		Msg("title import started")
	return nil
}

func (d *Device) importing(op string) (*importState, error) {
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	st, ok := d.state.(*importState)
	if !ok {
		return nil, fail(op, ErrParam, errors.New("no title import in progress"))
	}
	return st, nil
}

// AddContentStart opens a content of the title being imported. Only one
// content may be open at a time so the returned handle is always 0.
func (d *Device) AddContentStart(titleID uint64, contentID uint32) (handle uint32, err error) {
	const op = "AddContentStart"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return 0, err
	}
	st, _ := d.state.(*importState)
	if st != nil && st.active != nil {
		st.log.Error().
			Str("open", fmt.Sprintf("%08x", st.active.id)).
			Str("content", fmt.Sprintf("%08x", contentID)).
			Msg("adding content while another content is open is unsupported")
		return 0, fail(op, ErrWriteFailure, errors.New("another content is already open"))
	}
	if st == nil {
		return 0, fail(op, ErrParam, errors.New("no title import in progress"))
	}
	if titleID != st.tmd.TitleID() {
		st.log.Warn().
			Str("requested", nandpath.FormatTitleID(titleID)).
			Msg("content title ID does not match TMD, ignoring")
	}
	st.active = &stagedContent{id: contentID}
	st.log.Debug().Str("content", fmt.Sprintf("%08x", contentID)).Msg("content import started")
	return 0, nil
}

// AddContentData appends encrypted data to the open content
func (d *Device) AddContentData(handle uint32, data []byte) (err error) {
	const op = "AddContentData"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.importing(op)
	if err != nil {
		return err
	}
	if st.active == nil {
		return fail(op, ErrParam, errors.New("no content is open"))
	}
	st.active.buf.Write(data)
	return nil
}

// AddContentFinish decrypts the open content with the title key, checks its
// hash against the TMD and stages it for AddTitleFinish.
func (d *Device) AddContentFinish(handle uint32) (err error) {
	const op = "AddContentFinish"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.importing(op)
	if err != nil {
		return err
	}
	if st.active == nil {
		return fail(op, ErrParam, errors.New("no content is open"))
	}
	titleID := st.tmd.TitleID()
	ticket, err := d.InstalledTicket(titleID)
	if err != nil {
		return fail(op, ErrNoTicketInstalled, err)
	}
	desc, ok := st.tmd.FindContentByID(st.active.id)
	if !ok {
		return fail(op, ErrInvalidTMD, fmt.Errorf("content %08x is not in the TMD", st.active.id))
	}
	key, err := ticket.TitleKey(d.keys.CommonKey)
	if err != nil {
		return fail(op, ErrParam, err)
	}
	iv := titlecrypt.ContentIV(desc.Index)
	plain, err := titlecrypt.Decrypt(key[:], iv[:], st.active.buf.Bytes())
	if err != nil {
		return fail(op, ErrParam, err)
	}
	clog := st.log.With().Str("content", fmt.Sprintf("%08x", desc.ID)).Logger()
	if uint64(len(plain)) < desc.Size {
		clog.Error().Int("received", len(plain)).Uint64("size", desc.Size).Msg("content is truncated")
		return fail(op, ErrHashMismatch, fmt.Errorf("content %08x is truncated", desc.ID))
	}
	plain = plain[:desc.Size]
	if titlecrypt.Sum(plain) != desc.SHA1 {
		clog.Error().Msg("content hash doesn't match")
		return fail(op, ErrHashMismatch, nil)
	}
	staged := d.paths.ImportContentPath(titleID, desc.ID)
	if err := atomicfile.WriteFile(d.fs, staged, plain); err != nil {
		clog.Error().Err(err).Str("path", staged).Msg("failed to write staged content")
		return fail(op, ErrWriteFailure, err)
	}
	st.active = nil
	MetricContentBytes.WithLabelValues("import").Add(float64(len(plain)))
	clog.Debug().Uint64("size", desc.Size).Msg("content staged")
	return nil
}

// AddTitleFinish commits every staged content in TMD order and then the TMD
// itself. Contents that were never staged are skipped. If anything fails the
// private contents committed so far are removed along with the staging area;
// shared contents are kept since other titles may refer to them.
func (d *Device) AddTitleFinish() (err error) {
	const op = "AddTitleFinish"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.importing(op)
	if err != nil {
		return err
	}
	titleID := st.tmd.TitleID()
	var committed []string
	abort := func(err error) error {
		st.log.Error().Err(err).Int("rolled_back", len(committed)).Msg("title import failed")
		d.abortImport(titleID, committed)
		return fail(op, ErrWriteFailure, err)
	}
	for _, c := range st.tmd.Contents() {
		source := d.paths.ImportContentPath(titleID, c.ID)
		ok, err := afero.Exists(d.fs, source)
		if err != nil {
			return abort(err)
		} else if !ok {
			st.log.Warn().Str("content", fmt.Sprintf("%08x", c.ID)).Msg("content was not imported")
			continue
		}
		var dest string
		if c.IsShared() {
			dest, err = d.shared.Add(c.SHA1)
			if err != nil {
				return abort(err)
			}
		} else {
			dest = d.paths.ContentPath(titleID, c.ID, nandpath.Session)
		}
		if err := d.fs.MkdirAll(path.Dir(dest), 0755); err != nil {
			return abort(err)
		}
		if err := d.fs.Rename(source, dest); err != nil {
			return abort(fmt.Errorf("moving %s to %s: %w", source, dest, err))
		}
		if !c.IsShared() {
			committed = append(committed, dest)
		}
	}
	if err := d.fs.MkdirAll(d.paths.TitleDataDir(titleID, nandpath.Session), 0755); err != nil {
		return abort(err)
	}
	staged := d.paths.ImportTMDPath(titleID)
	if err := atomicfile.WriteFile(d.fs, staged, st.tmd.Raw()); err != nil {
		return abort(err)
	}
	dest := d.paths.TMDPath(titleID, nandpath.Session)
	if err := d.fs.MkdirAll(path.Dir(dest), 0755); err != nil {
		return abort(err)
	}
	if err := d.fs.Rename(staged, dest); err != nil {
		return abort(fmt.Errorf("moving %s to %s: %w", staged, dest, err))
	}
	if err := d.fs.RemoveAll(d.paths.ImportDir(titleID)); err != nil {
		st.log.Warn().Err(err).Msg("unable to clean up import directory")
	}
	d.state = idleState{}
	st.log.Info().Int("committed", len(committed)).Msg("title import finished")
	return nil
}

// AddTitleCancel abandons the import and removes everything staged for it
func (d *Device) AddTitleCancel() (err error) {
	const op = "AddTitleCancel"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.importing(op)
	if err != nil {
		return err
	}
	d.abortImport(st.tmd.TitleID(), nil)
	d.state = idleState{}
	st.log.Info().Msg("title import cancelled")
	return nil
}

func (d *Device) abortImport(titleID uint64, committed []string) {
	for _, name := range committed {
		if err := d.fs.Remove(name); err != nil {
			d.log.Warn().Err(err).Str("path", name).Msg("unable to roll back content")
		}
	}
	if err := d.fs.RemoveAll(d.paths.ImportDir(titleID)); err != nil {
		d.log.Warn().Err(err).Msg("unable to remove import directory")
	}
}
