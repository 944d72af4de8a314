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

const (
	HeaderSize = 0x20
	// every section starts on a 64 byte boundary
	Align = 64

	TypeInstallable uint32 = 0x49730000 // "Is\0\0"
	TypeBoot2       uint32 = 0x69620000 // "ib\0\0"
)

type Header struct {
	HeaderSize    uint32
	Type          uint32
	CertChainSize uint32
	Reserved      uint32
	TicketSize    uint32
	TMDSize       uint32
	DataSize      uint32
	FooterSize    uint32
}

func alignUp(n int64) int64 {
	return (n + Align - 1) &^ (Align - 1)
}

// sectionOffsets returns the start of the cert chain, ticket, TMD, data and
// footer sections
func (h *Header) sectionOffsets() [5]int64 {
	var offsets [5]int64
	pos := alignUp(int64(h.HeaderSize))
	for i, size := range []uint32{h.CertChainSize, h.TicketSize, h.TMDSize, h.DataSize} {
		offsets[i] = pos
		pos = alignUp(pos + int64(size))
	}
	offsets[4] = pos
	return offsets
}
