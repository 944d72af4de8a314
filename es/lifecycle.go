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
	"time"

	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
)

// DeleteTitle removes an installed title and its whole directory. System
// titles up to 00000001-00000101 cannot be deleted.
func (d *Device) DeleteTitle(titleID uint64) (err error) {
	const op = "DeleteTitle"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if esformat.IsProtectedSystemTitle(titleID) {
		return fail(op, ErrParam, errors.New("system titles cannot be deleted"))
	}
	titleDir := d.paths.TitleDir(titleID, nandpath.Session)
	info, err := d.fs.Stat(titleDir)
	if err != nil {
		return fail(op, ErrNotFound, err)
	} else if !info.IsDir() {
		return fail(op, ErrNotFound, errors.New("title path is not a directory"))
	}
	if err := d.removeTitleContents(titleID); err != nil {
		return fail(op, ErrNotFound, err)
	}
	if err := d.fs.RemoveAll(titleDir); err != nil {
		d.log.Error().Err(err).Str("path", titleDir).Msg("failed to delete title directory")
		return fail(op, ErrAccess, err)
	}
	d.log.Info().Str("title", nandpath.FormatTitleID(titleID)).Msg("deleted title")
	return nil
}

// DeleteTitleContent removes the private contents of an installed title but
// keeps its TMD and directories.
func (d *Device) DeleteTitleContent(titleID uint64) (err error) {
	const op = "DeleteTitleContent"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if err := d.removeTitleContents(titleID); err != nil {
		return fail(op, ErrParam, err)
	}
	d.log.Info().Str("title", nandpath.FormatTitleID(titleID)).Msg("deleted title contents")
	return nil
}
