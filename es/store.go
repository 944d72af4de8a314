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
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
)

// InstalledTMD loads the committed TMD of a title from the session NAND
func (d *Device) InstalledTMD(titleID uint64) (*esformat.TMD, error) {
	blob, err := afero.ReadFile(d.fs, d.paths.TMDPath(titleID, nandpath.Session))
	if err != nil {
		return nil, err
	}
	tmd, err := esformat.ParseTMD(blob)
	if err != nil {
		return nil, err
	}
	if tmd.TitleID() != titleID {
		return nil, fmt.Errorf("tmd for %016x names title %016x", titleID, tmd.TitleID())
	}
	return tmd, nil
}

// InstalledTicket loads the ticket of a title from the session NAND
func (d *Device) InstalledTicket(titleID uint64) (*esformat.Ticket, error) {
	blob, err := afero.ReadFile(d.fs, d.paths.TicketPath(titleID, nandpath.Session))
	if err != nil {
		return nil, err
	}
	return esformat.ParseTicket(blob)
}

// contentLocation returns where an installed content lives: the shared store
// for shared contents, otherwise the title's content directory
func (d *Device) contentLocation(titleID uint64, c esformat.Content) (string, error) {
	if c.IsShared() {
		name, ok, err := d.shared.Lookup(c.SHA1)
		if err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("shared content %08x: %w", c.ID, os.ErrNotExist)
		}
		return name, nil
	}
	return d.paths.ContentPath(titleID, c.ID, nandpath.Session), nil
}

func (d *Device) openContent(titleID uint64, c esformat.Content) (afero.File, error) {
	name, err := d.contentLocation(titleID, c)
	if err != nil {
		return nil, err
	}
	return d.fs.Open(name)
}

// StoredContents returns the contents of a TMD that are present on disk
func (d *Device) StoredContents(tmd *esformat.TMD) ([]esformat.Content, error) {
	var stored []esformat.Content
	for _, c := range tmd.Contents() {
		name, err := d.contentLocation(tmd.TitleID(), c)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		if ok, err := afero.Exists(d.fs, name); err != nil {
			return nil, err
		} else if ok {
			stored = append(stored, c)
		}
	}
	return stored, nil
}

// removeTitleContents deletes the private contents of an installed title.
// Shared contents and the TMD are left alone.
func (d *Device) removeTitleContents(titleID uint64) error {
	tmd, err := d.InstalledTMD(titleID)
	if err != nil {
		return err
	}
	for _, c := range tmd.Contents() {
		if c.IsShared() {
			continue
		}
		name := d.paths.ContentPath(titleID, c.ID, nandpath.Session)
		if err := d.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.Warn().Err(err).Str("path", name).Msg("unable to delete content")
		} else if err == nil {
			d.log.Debug().Str("path", name).Msg("deleted content")
		}
	}
	return nil
}

// InstalledTitles lists every title with a directory under /title
func (d *Device) InstalledTitles() ([]uint64, error) {
	return d.scanTitleDirs(d.paths.RootPath(nandpath.Session) + "/title")
}

// TitleImports lists every title with a staging directory under /import
func (d *Device) TitleImports() ([]uint64, error) {
	return d.scanTitleDirs(d.paths.ImportRoot())
}

// TitlesWithTickets lists every title with a ticket file under /ticket
func (d *Device) TitlesWithTickets() ([]uint64, error) {
	return d.scanTitleTree(d.paths.RootPath(nandpath.Session)+"/ticket", func(info os.FileInfo) (string, bool) {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".tik") {
			return "", false
		}
		return strings.TrimSuffix(name, ".tik"), true
	})
}

func (d *Device) scanTitleDirs(dir string) ([]uint64, error) {
	return d.scanTitleTree(dir, func(info os.FileInfo) (string, bool) {
		return info.Name(), info.IsDir()
	})
}

// scanTitleTree walks a two level <hi8>/<lo8> tree, using leaf to pick the
// low half of the title ID out of each second level entry
func (d *Device) scanTitleTree(dir string, leaf func(os.FileInfo) (string, bool)) ([]uint64, error) {
	types, err := afero.ReadDir(d.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var titles []uint64
	for _, titleType := range types {
		if !titleType.IsDir() || !nandpath.IsTitleIDPart(titleType.Name()) {
			continue
		}
		entries, err := afero.ReadDir(d.fs, path.Join(dir, titleType.Name()))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			lo, ok := leaf(entry)
			if !ok {
				continue
			}
			titleID, err := nandpath.JoinTitleID(titleType.Name(), lo)
			if err != nil {
				continue
			}
			titles = append(titles, titleID)
		}
	}
	sort.Slice(titles, func(i, j int) bool { return titles[i] < titles[j] })
	return titles, nil
}
