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

// Package wad reads and writes WAD title packages: a certificate chain, a
// ticket, a TMD and the encrypted contents of a title.
package wad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/titlecrypt"
)

var ErrNotWAD = errors.New("not a WAD file")

type Reader struct {
	Header    Header
	CertChain []byte
	Ticket    []byte
	TMD       []byte
	Footer    []byte

	r        io.ReaderAt
	tmd      *esformat.TMD
	contents []int64
}

// NewReader parses the header and metadata sections of a WAD. Contents are
// read on demand.
func NewReader(r io.ReaderAt) (*Reader, error) {
	w := &Reader{r: r}
	if err := binary.Read(io.NewSectionReader(r, 0, HeaderSize), binary.BigEndian, &w.Header); err != nil {
		return nil, fmt.Errorf("reading WAD header: %w", err)
	}
	if w.Header.HeaderSize != HeaderSize {
		return nil, ErrNotWAD
	} else if w.Header.Type != TypeInstallable && w.Header.Type != TypeBoot2 {
		return nil, fmt.Errorf("%w: unknown type %08x", ErrNotWAD, w.Header.Type)
	}
	offsets := w.Header.sectionOffsets()
	var err error
	if w.CertChain, err = readSection(r, offsets[0], w.Header.CertChainSize); err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}
	if w.Ticket, err = readSection(r, offsets[1], w.Header.TicketSize); err != nil {
		return nil, fmt.Errorf("ticket: %w", err)
	}
	if w.TMD, err = readSection(r, offsets[2], w.Header.TMDSize); err != nil {
		return nil, fmt.Errorf("tmd: %w", err)
	}
	if w.Footer, err = readSection(r, offsets[4], w.Header.FooterSize); err != nil {
		return nil, fmt.Errorf("footer: %w", err)
	}
	if _, err := esformat.ParseTicket(w.Ticket); err != nil {
		return nil, err
	}
	if w.tmd, err = esformat.ParseTMD(w.TMD); err != nil {
		return nil, err
	}
	pos := offsets[3]
	end := pos + int64(w.Header.DataSize)
	for _, c := range w.tmd.Contents() {
		w.contents = append(w.contents, pos)
		pos = alignUp(pos + encryptedSize(c))
	}
	if len(w.contents) > 0 {
		last := w.tmd.Contents()[len(w.contents)-1]
		if w.contents[len(w.contents)-1]+encryptedSize(last) > end {
			return nil, errors.New("contents extend past the data section")
		}
	}
	return w, nil
}

func readSection(r io.ReaderAt, offset int64, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if n, err := r.ReadAt(buf, offset); err != nil && n < len(buf) {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func encryptedSize(c esformat.Content) int64 {
	return int64(titlecrypt.AlignUp(int(c.Size), titlecrypt.BlockSize))
}

// ParsedTMD returns the title metadata of the package
func (w *Reader) ParsedTMD() *esformat.TMD {
	return w.tmd
}

// Content returns the encrypted data of the i'th content in TMD order,
// including the cipher block padding.
func (w *Reader) Content(i int) (*io.SectionReader, error) {
	c, ok := w.tmd.Content(i)
	if !ok {
		return nil, fmt.Errorf("content %d out of range", i)
	}
	return io.NewSectionReader(w.r, w.contents[i], encryptedSize(c)), nil
}
