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

// Package titlecmd implements the title management commands by driving the
// device engine the same way a guest would.
package titlecmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/esnand/estitle/es"
	"github.com/esnand/estitle/lib/wad"
)

// chunkSize is the transfer size of each content data request
const chunkSize = 0x10000

// InstallWAD imports the ticket, TMD and every content of a WAD. A failed
// import is cancelled so nothing is left behind.
func InstallWAD(d *es.Device, r *wad.Reader) (err error) {
	if err := d.AddTicket(r.Ticket); err != nil {
		return err
	}
	if err := d.AddTitleStart(r.TMD); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, d.AddTitleCancel())
		}
	}()
	tmd := r.ParsedTMD()
	buf := make([]byte, chunkSize)
	for i, c := range tmd.Contents() {
		src, err := r.Content(i)
		if err != nil {
			return err
		}
		handle, err := d.AddContentStart(tmd.TitleID(), c.ID)
		if err != nil {
			return err
		}
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if err := d.AddContentData(handle, buf[:n]); err != nil {
					return err
				}
			}
			if err == io.EOF {
				break
			} else if err != nil {
				return fmt.Errorf("content %08x: %w", c.ID, err)
			}
		}
		if err := d.AddContentFinish(handle); err != nil {
			return err
		}
	}
	return d.AddTitleFinish()
}

// ExportWAD streams an installed title out of the device as a WAD
func ExportWAD(d *es.Device, titleID uint64, certChain []byte, w io.Writer) (err error) {
	installed, err := d.InstalledTMD(titleID)
	if err != nil {
		return fmt.Errorf("title %016x is not installed: %w", titleID, err)
	}
	ticket, err := d.InstalledTicket(titleID)
	if err != nil {
		return fmt.Errorf("title %016x has no ticket: %w", titleID, err)
	}
	tmdBlob := make([]byte, len(installed.Raw()))
	if err := d.ExportTitleInit(titleID, tmdBlob); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.ExportTitleDone())
	}()
	ww, err := wad.NewWriter(w, certChain, ticket.Raw(), tmdBlob)
	if err != nil {
		return err
	}
	for _, c := range installed.Contents() {
		handle, err := d.ExportContentBegin(titleID, c.ID)
		if err != nil {
			return err
		}
		cr := &contentReader{d: d, handle: handle, remaining: int64(c.Size)}
		if err := ww.WriteContent(cr); err != nil {
			return err
		}
		if err := d.ExportContentEnd(handle); err != nil {
			return err
		}
	}
	return ww.Close()
}

// contentReader adapts ExportContentData to io.Reader
type contentReader struct {
	d         *es.Device
	handle    uint32
	remaining int64
	buf       []byte
	pending   []byte
}

func (r *contentReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.remaining <= 0 {
			return 0, io.EOF
		}
		if r.buf == nil {
			r.buf = make([]byte, chunkSize)
		}
		n, err := r.d.ExportContentData(r.handle, r.buf)
		if err != nil {
			return 0, err
		}
		r.remaining -= int64(min(chunkSize, r.remaining))
		r.pending = r.buf[:n]
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
