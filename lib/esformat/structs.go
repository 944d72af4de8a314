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

// All multi-byte fields are big-endian.

const (
	SigRSA4096 = 0x10000
	SigRSA2048 = 0x10001
	SigECDSA   = 0x10002

	TMDHeaderSize   = 0x1e4
	ContentSize     = 36
	ContentViewSize = 0x10
	TicketSize      = 356
	TicketViewSize  = 0xd8

	// offsets of fields inside a ticket body
	offServerPublicKey = 0x40
	offTitleKey        = 0x7f
	offTicketID        = 0x90
	offDeviceID        = 0x98
	offTitleID         = 0x9c

	// offsets of fields inside a TMD header
	offTMDVersion   = 0x180
	offTMDTitleID   = 0x18c
	offGroupID      = 0x198
	offAccessRights = 0x1d8
	offTitleVersion = 0x1dc
	offNumContents  = 0x1de

	sharedContentFlag = 0x8000
)

type TitleType uint32

const (
	TitleSystem          TitleType = 0x00000001
	TitleGame            TitleType = 0x00010000
	TitleChannel         TitleType = 0x00010001
	TitleSystemChannel   TitleType = 0x00010002
	TitleGameWithChannel TitleType = 0x00010004
	TitleDLC             TitleType = 0x00010005
	TitleHiddenChannel   TitleType = 0x00010008
)

const TitleIDSystemMenu uint64 = 0x0000000100000002

type TMDHeader struct {
	SignatureType    uint32
	Signature        [256]byte
	Fill             [60]byte
	Issuer           [64]byte
	Version          uint8
	CACRLVersion     uint8
	SignerCRLVersion uint8
	_                uint8
	IOSID            uint64
	TitleID          uint64
	TitleType        uint32
	GroupID          uint16
	_                uint16
	Region           uint16
	Ratings          [16]byte
	_                [12]byte
	IPCMask          [12]byte
	_                [18]byte
	AccessRights     uint32
	TitleVersion     uint16
	NumContents      uint16
	BootIndex        uint16
	_                uint16
}

// Content is one entry of the content table following the TMD header
type Content struct {
	ID    uint32
	Index uint16
	Type  uint16
	Size  uint64
	SHA1  [20]byte
}

// IsShared reports whether the content is stored once for every title
// referencing it, addressed by its hash.
func (c Content) IsShared() bool {
	return c.Type&sharedContentFlag != 0
}

type TimeLimit struct {
	Enabled uint32
	Seconds uint32
}

// TicketBody follows the signature block of a ticket
type TicketBody struct {
	SignatureIssuer          [0x40]byte
	ServerPublicKey          [0x3c]byte
	Version                  uint8
	CACRLVersion             uint8
	SignerCRLVersion         uint8
	TitleKey                 [16]byte
	_                        uint8
	TicketID                 uint64
	DeviceID                 uint32
	TitleID                  uint64
	AccessMask               uint16
	TicketVersion            uint16
	PermittedTitleID         uint32
	PermittedTitleMask       uint32
	TitleExportAllowed       uint8
	CommonKeyIndex           uint8
	Unknown2                 [0x30]byte
	ContentAccessPermissions [0x40]byte
	_                        [2]byte
	TimeLimits               [8]TimeLimit
}

// SignatureSize returns the size of the signature block (type, signature and
// padding) preceding a signed structure, or 0 for an unknown type.
func SignatureSize(sigType uint32) int {
	switch sigType {
	case SigRSA4096:
		return 576
	case SigRSA2048:
		return 320
	case SigECDSA:
		return 128
	default:
		return 0
	}
}
