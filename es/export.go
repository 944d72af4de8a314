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
	"crypto/sha1"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/esnand/estitle/internal/closeonce"
	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
	"github.com/esnand/estitle/lib/readercounter"
	"github.com/esnand/estitle/lib/titlecrypt"
)

// exportAlign is the granularity of each encrypted chunk
const exportAlign = 32

type exportState struct {
	tmd      *esformat.TMD
	titleKey titlecrypt.Key
	contents map[uint32]*exportContent
}

func (*exportState) name() string { return "exporting" }

type exportContent struct {
	desc   esformat.Content
	f      afero.File
	r      *readercounter.ReaderCounter
	chain  *titlecrypt.Chain
	closed closeonce.Closed
}

func (c *exportContent) position() uint64 {
	return uint64(c.r.N)
}

func (c *exportContent) Close() error {
	return c.closed.Close(c.f.Close)
}

// nextHandle returns the smallest handle not currently in use
func (st *exportState) nextHandle() uint32 {
	var h uint32
	for {
		if _, ok := st.contents[h]; !ok {
			return h
		}
		h++
	}
}

func (st *exportState) closeAll() error {
	var errs []error
	for h, c := range st.contents {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(st.contents, h)
	}
	return errors.Join(errs...)
}

// ExportTitleInit starts exporting an installed title and copies its TMD into
// out, which must be exactly the size of the TMD.
func (d *Device) ExportTitleInit(titleID uint64, out []byte) (err error) {
	const op = "ExportTitleInit"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if _, idle := d.state.(idleState); !idle {
		return fail(op, ErrParam, fmt.Errorf("device is busy %s", d.state.name()))
	}
	tmd, err := d.InstalledTMD(titleID)
	if err != nil {
		return fail(op, ErrNotFound, err)
	}
	ticket, err := d.InstalledTicket(titleID)
	if err != nil {
		return fail(op, ErrNoTicketInstalled, err)
	}
	if ticket.TitleID() != tmd.TitleID() {
		return fail(op, ErrParam, fmt.Errorf("ticket is for title %016x", ticket.TitleID()))
	}
	key, err := ticket.TitleKey(d.keys.CommonKey)
	if err != nil {
		return fail(op, ErrParam, err)
	}
	if len(out) != len(tmd.Raw()) {
		return fail(op, ErrParam, fmt.Errorf("output buffer is %d bytes but the TMD is %d", len(out), len(tmd.Raw())))
	}
	copy(out, tmd.Raw())
	d.state = &exportState{
		tmd:      tmd,
		titleKey: key,
		contents: make(map[uint32]*exportContent),
	}
	d.log.Info().Str("title", nandpath.FormatTitleID(titleID)).Msg("title export started")
	return nil
}

func (d *Device) exporting(op string) (*exportState, error) {
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	st, ok := d.state.(*exportState)
	if !ok {
		return nil, fail(op, ErrParam, errors.New("no title export in progress"))
	}
	return st, nil
}

// ExportContentBegin opens an installed content of the title being exported
// and returns a handle for reading it.
func (d *Device) ExportContentBegin(titleID uint64, contentID uint32) (handle uint32, err error) {
	const op = "ExportContentBegin"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.exporting(op)
	if err != nil {
		return 0, err
	}
	if titleID != st.tmd.TitleID() {
		d.log.Error().Str("title", nandpath.FormatTitleID(titleID)).Msg("content export for a title that is not being exported")
		return 0, fail(op, ErrParam, errors.New("title is not being exported"))
	}
	installed, err := d.InstalledTMD(titleID)
	if err != nil {
		return 0, fail(op, ErrNotFound, err)
	}
	desc, ok := installed.FindContentByID(contentID)
	if !ok {
		return 0, fail(op, ErrParam, fmt.Errorf("content %08x is not in the TMD", contentID))
	}
	f, err := d.openContent(titleID, desc)
	if err != nil {
		return 0, fail(op, ErrNotFound, err)
	}
	chain, err := titlecrypt.NewChain(st.titleKey[:], titlecrypt.ContentIV(desc.Index))
	if err != nil {
		f.Close()
		return 0, fail(op, ErrParam, err)
	}
	c := &exportContent{desc: desc, f: f, chain: chain}
	if d.verifyHash {
		c.r = readercounter.NewHashing(f, sha1.New())
	} else {
		c.r = readercounter.New(f)
	}
	handle = st.nextHandle()
	st.contents[handle] = c
	d.log.Debug().
		Str("content", fmt.Sprintf("%08x", contentID)).
		Uint32("handle", handle).
		Msg("content export started")
	return handle, nil
}

// ExportContentData reads the next chunk of a content, at most len(out)
// bytes, and writes it into out encrypted with the title key. The chunk is
// zero padded to 32 bytes and the CBC chain carries over between calls on
// the same handle. It returns the number of bytes written to out.
//
// Callers should pass buffers whose length is a multiple of 32. A shorter
// tail cannot hold a padded chunk, so a 48-byte buffer never makes progress
// on a content longer than 32 bytes.
func (d *Device) ExportContentData(handle uint32, out []byte) (n int, err error) {
	const op = "ExportContentData"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.exporting(op)
	if err != nil {
		return 0, err
	}
	c := st.contents[handle]
	if c == nil {
		return 0, fail(op, ErrParam, fmt.Errorf("unknown handle %d", handle))
	}
	pos := c.position()
	if pos >= c.desc.Size {
		return 0, fail(op, ErrParam, errors.New("content has been read completely"))
	}
	if len(out) == 0 {
		return 0, fail(op, ErrParam, errors.New("output buffer is empty"))
	}
	length := int(min(c.desc.Size-pos, uint64(len(out))))
	padded := titlecrypt.AlignUp(length, exportAlign)
	if padded > len(out) {
		return 0, fail(op, ErrParam, fmt.Errorf("output buffer of %d bytes cannot hold %d aligned bytes", len(out), padded))
	}
	buf := make([]byte, padded)
	got, err := c.r.ReadAtMost(buf[:length])
	if err == nil && got < length {
		err = fmt.Errorf("read %d of %d bytes", got, length)
	}
	if err != nil {
		d.log.Error().Err(err).Str("content", fmt.Sprintf("%08x", c.desc.ID)).Msg("short read exporting content")
		return 0, fail(op, ErrReadLessThanExpected, err)
	}
	ciphertext, err := c.chain.Encrypt(buf)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to encrypt content")
		return 0, fail(op, ErrParam, err)
	}
	MetricContentBytes.WithLabelValues("export").Add(float64(length))
	return copy(out, ciphertext), nil
}

// ExportContentEnd closes a content handle once it has been read completely
func (d *Device) ExportContentEnd(handle uint32) (err error) {
	const op = "ExportContentEnd"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.exporting(op)
	if err != nil {
		return err
	}
	c := st.contents[handle]
	if c == nil {
		return fail(op, ErrParam, fmt.Errorf("unknown handle %d", handle))
	}
	if c.position() != c.desc.Size {
		return fail(op, ErrParam, fmt.Errorf("content read %d of %d bytes", c.position(), c.desc.Size))
	}
	delete(st.contents, handle)
	if err := c.Close(); err != nil {
		d.log.Warn().Err(err).Msg("unable to close content")
	}
	if c.r.H != nil && !bytes.Equal(c.r.H.Sum(nil), c.desc.SHA1[:]) {
		d.log.Error().Str("content", fmt.Sprintf("%08x", c.desc.ID)).Msg("installed content hash doesn't match")
		return fail(op, ErrHashMismatch, nil)
	}
	return nil
}

// ExportTitleDone finishes the export. Content handles still open are closed.
func (d *Device) ExportTitleDone() (err error) {
	const op = "ExportTitleDone"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.exporting(op)
	if err != nil {
		return err
	}
	if n := len(st.contents); n != 0 {
		d.log.Warn().Int("handles", n).Msg("closing abandoned export handles")
	}
	if err := st.closeAll(); err != nil {
		d.log.Warn().Err(err).Msg("unable to close content")
	}
	d.state = idleState{}
	d.log.Info().Str("title", nandpath.FormatTitleID(st.tmd.TitleID())).Msg("title export finished")
	return nil
}
