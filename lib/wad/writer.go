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
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/esnand/estitle/lib/esformat"
)

var zeroPad [Align]byte

// Writer streams a WAD. The metadata is written up front and each content
// must then be supplied in TMD order.
type Writer struct {
	w        io.Writer
	pos      int64
	contents []esformat.Content
	next     int
}

func NewWriter(w io.Writer, certChain, ticket, tmdBlob []byte) (*Writer, error) {
	tmd, err := esformat.ParseTMD(tmdBlob)
	if err != nil {
		return nil, err
	}
	if _, err := esformat.ParseTicket(ticket); err != nil {
		return nil, err
	}
	var dataSize int64
	for i, c := range tmd.Contents() {
		if i > 0 {
			dataSize = alignUp(dataSize)
		}
		dataSize += encryptedSize(c)
	}
	if dataSize > 0xffffffff {
		return nil, errors.New("title is too large for a WAD")
	}
	hdr := Header{
		HeaderSize:    HeaderSize,
		Type:          TypeInstallable,
		CertChainSize: uint32(len(certChain)),
		TicketSize:    uint32(len(ticket)),
		TMDSize:       uint32(len(tmdBlob)),
		DataSize:      uint32(dataSize),
	}
	ww := &Writer{w: w, contents: tmd.Contents()}
	if err := binary.Write(ww, binary.BigEndian, hdr); err != nil {
		return nil, err
	}
	for _, section := range [][]byte{certChain, ticket, tmdBlob} {
		if err := ww.pad(); err != nil {
			return nil, err
		}
		if _, err := ww.Write(section); err != nil {
			return nil, err
		}
	}
	return ww, nil
}

func (w *Writer) Write(d []byte) (int, error) {
	n, err := w.w.Write(d)
	w.pos += int64(n)
	return n, err
}

func (w *Writer) pad() error {
	if n := alignUp(w.pos) - w.pos; n > 0 {
		_, err := w.Write(zeroPad[:n])
		return err
	}
	return nil
}

// WriteContent copies the next encrypted content from r. Exactly the
// block-aligned size of the content is consumed.
func (w *Writer) WriteContent(r io.Reader) error {
	if w.next >= len(w.contents) {
		return errors.New("all contents have already been written")
	}
	c := w.contents[w.next]
	if err := w.pad(); err != nil {
		return err
	}
	if _, err := io.CopyN(w, r, encryptedSize(c)); err != nil {
		return fmt.Errorf("content %08x: %w", c.ID, err)
	}
	w.next++
	return nil
}

// Close pads the final section. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.next != len(w.contents) {
		return fmt.Errorf("only %d of %d contents were written", w.next, len(w.contents))
	}
	return w.pad()
}
