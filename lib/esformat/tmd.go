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

package esformat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode"
)

var (
	ErrTMDTooSmall       = errors.New("tmd is too small to contain its header")
	ErrTMDContentsCutOff = errors.New("tmd is too small to contain all of its content entries")
)

// TMD is a parsed, immutable view of a signed title metadata blob
type TMD struct {
	raw      []byte
	Header   TMDHeader
	contents []Content
}

// ParseTMD validates the structure of a raw TMD and parses its header and
// content table. The blob is retained as-is, including any trailing
// certificate chain.
func ParseTMD(raw []byte) (*TMD, error) {
	if len(raw) < TMDHeaderSize {
		return nil, ErrTMDTooSmall
	}
	t := &TMD{raw: raw}
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.BigEndian, &t.Header); err != nil {
		return nil, fmt.Errorf("tmd header: %w", err)
	}
	n := int(t.Header.NumContents)
	if len(raw) < TMDHeaderSize+n*ContentSize {
		return nil, ErrTMDContentsCutOff
	}
	t.contents = make([]Content, n)
	if err := binary.Read(r, binary.BigEndian, t.contents); err != nil {
		return nil, fmt.Errorf("tmd contents: %w", err)
	}
	return t, nil
}

// NewTMD serializes a header and content table into a TMD blob. NumContents
// is set from the length of contents.
func NewTMD(hdr TMDHeader, contents []Content) (*TMD, error) {
	if len(contents) > 0xffff {
		return nil, errors.New("too many contents")
	}
	hdr.NumContents = uint16(len(contents))
	buf := bytes.NewBuffer(make([]byte, 0, TMDHeaderSize+len(contents)*ContentSize))
	_ = binary.Write(buf, binary.BigEndian, hdr)
	_ = binary.Write(buf, binary.BigEndian, contents)
	return ParseTMD(buf.Bytes())
}

// Raw returns the TMD exactly as it was supplied
func (t *TMD) Raw() []byte {
	return t.raw
}

func (t *TMD) TitleID() uint64 {
	return t.Header.TitleID
}

func (t *TMD) TitleVersion() uint16 {
	return t.Header.TitleVersion
}

func (t *TMD) IOSID() uint64 {
	return t.Header.IOSID
}

func (t *TMD) GroupID() uint16 {
	return t.Header.GroupID
}

func (t *TMD) BootIndex() uint16 {
	return t.Header.BootIndex
}

func (t *TMD) NumContents() int {
	return len(t.contents)
}

// Contents returns a copy of the content table in TMD order
func (t *TMD) Contents() []Content {
	out := make([]Content, len(t.contents))
	copy(out, t.contents)
	return out
}

// Content returns the i'th entry of the content table
func (t *TMD) Content(i int) (Content, bool) {
	if i < 0 || i >= len(t.contents) {
		return Content{}, false
	}
	return t.contents[i], true
}

func (t *TMD) FindContentByID(id uint32) (Content, bool) {
	for _, c := range t.contents {
		if c.ID == id {
			return c, true
		}
	}
	return Content{}, false
}

func (t *TMD) FindContentByIndex(index uint16) (Content, bool) {
	for _, c := range t.contents {
		if c.Index == index {
			return c, true
		}
	}
	return Content{}, false
}

// RawView returns the unsigned TMD view: the header fields from the TMD
// version up to the access rights, title version, content count, and each
// content entry without its hash.
func (t *TMD) RawView() []byte {
	view := make([]byte, 0, offAccessRights-offTMDVersion+4+len(t.contents)*ContentViewSize)
	view = append(view, t.raw[offTMDVersion:offAccessRights]...)
	view = append(view, t.raw[offTitleVersion:offTitleVersion+2]...)
	view = append(view, t.raw[offNumContents:offNumContents+2]...)
	for i := range t.contents {
		start := TMDHeaderSize + i*ContentSize
		view = append(view, t.raw[start:start+ContentViewSize]...)
	}
	return view
}

// GameID returns the 6-character game code built from the low half of the
// title ID and the group ID, or the hex title ID when any character would be
// unprintable.
func (t *TMD) GameID() string {
	id := make([]byte, 0, 6)
	id = append(id, t.raw[offTMDTitleID+4:offTMDTitleID+8]...)
	id = append(id, t.raw[offGroupID:offGroupID+2]...)
	for _, c := range id {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return fmt.Sprintf("%016x", t.TitleID())
		}
	}
	return string(id)
}
