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
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/esnand/estitle/internal/eslog"
)

// IOCtl identifies a title management request
type IOCtl uint32

const (
	IOCtlAddTicket          IOCtl = 0x01
	IOCtlAddTitleStart      IOCtl = 0x02
	IOCtlAddContentStart    IOCtl = 0x03
	IOCtlAddContentData     IOCtl = 0x04
	IOCtlAddContentFinish   IOCtl = 0x05
	IOCtlAddTitleFinish     IOCtl = 0x06
	IOCtlDeleteTitle        IOCtl = 0x17
	IOCtlDeleteTicket       IOCtl = 0x18
	IOCtlDeleteTitleContent IOCtl = 0x22
	IOCtlExportTitleInit    IOCtl = 0x26
	IOCtlExportContentBegin IOCtl = 0x27
	IOCtlExportContentData  IOCtl = 0x28
	IOCtlExportContentEnd   IOCtl = 0x29
	IOCtlExportTitleDone    IOCtl = 0x2a
	IOCtlAddTMD             IOCtl = 0x2b
	IOCtlAddTitleCancel     IOCtl = 0x2f
)

var ioctlNames = map[IOCtl]string{
	IOCtlAddTicket:          "AddTicket",
	IOCtlAddTitleStart:      "AddTitleStart",
	IOCtlAddContentStart:    "AddContentStart",
	IOCtlAddContentData:     "AddContentData",
	IOCtlAddContentFinish:   "AddContentFinish",
	IOCtlAddTitleFinish:     "AddTitleFinish",
	IOCtlDeleteTitle:        "DeleteTitle",
	IOCtlDeleteTicket:       "DeleteTicket",
	IOCtlDeleteTitleContent: "DeleteTitleContent",
	IOCtlExportTitleInit:    "ExportTitleInit",
	IOCtlExportContentBegin: "ExportContentBegin",
	IOCtlExportContentData:  "ExportContentData",
	IOCtlExportContentEnd:   "ExportContentEnd",
	IOCtlExportTitleDone:    "ExportTitleDone",
	IOCtlAddTMD:             "AddTMD",
	IOCtlAddTitleCancel:     "AddTitleCancel",
}

func (c IOCtl) String() string {
	if name, ok := ioctlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("IOCtl(%#x)", uint32(c))
}

// Request carries the buffers of a vectored request. In vectors are read by
// the device; IO vectors are written in place.
type Request struct {
	In [][]byte
	IO [][]byte
}

func (r Request) hasVectors(in, io int) bool {
	return len(r.In) == in && len(r.IO) == io
}

// inSizes checks that each input vector has exactly the given size. A
// negative size accepts any length.
func (r Request) inSizes(sizes ...int) bool {
	for i, size := range sizes {
		if size >= 0 && len(r.In[i]) != size {
			return false
		}
	}
	return true
}

func (r Request) u64(i int) uint64 { return binary.BigEndian.Uint64(r.In[i]) }
func (r Request) u32(i int) uint32 { return binary.BigEndian.Uint32(r.In[i]) }

// IOCtlV validates the shape of a request and dispatches it. The result is a
// handle or IPCSuccess, or a negative code.
func (d *Device) IOCtlV(code IOCtl, req Request) (rc ReturnCode) {
	r := eslog.StartRequest(d.log, code.String())
	defer func() { r.Finish(int32(rc)) }()
	var (
		handle uint32
		err    error
	)
	switch code {
	case IOCtlAddTicket:
		if !req.hasVectors(3, 0) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddTicket(req.In[0])
	case IOCtlAddTMD:
		if !req.hasVectors(1, 0) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddTMD(req.In[0])
	case IOCtlAddTitleStart:
		if !req.hasVectors(4, 0) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddTitleStart(req.In[0])
	case IOCtlAddContentStart:
		if !req.hasVectors(2, 0) || !req.inSizes(8, 4) {
			return ESParameterSizeOrAlignment
		}
		handle, err = d.AddContentStart(req.u64(0), req.u32(1))
	case IOCtlAddContentData:
		if !req.hasVectors(2, 0) || !req.inSizes(4, -1) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddContentData(req.u32(0), req.In[1])
	case IOCtlAddContentFinish:
		if !req.hasVectors(1, 0) || !req.inSizes(4) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddContentFinish(req.u32(0))
	case IOCtlAddTitleFinish:
		if !req.hasVectors(0, 0) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddTitleFinish()
	case IOCtlAddTitleCancel:
		if !req.hasVectors(0, 0) {
			return ESParameterSizeOrAlignment
		}
		err = d.AddTitleCancel()
	case IOCtlDeleteTitle:
		if !req.hasVectors(1, 0) || !req.inSizes(8) {
			return ESParameterSizeOrAlignment
		}
		err = d.DeleteTitle(req.u64(0))
	case IOCtlDeleteTicket:
		if !req.hasVectors(1, 0) || !req.inSizes(8) {
			return ESParameterSizeOrAlignment
		}
		err = d.DeleteTicket(req.u64(0))
	case IOCtlDeleteTitleContent:
		if !req.hasVectors(1, 0) || !req.inSizes(8) {
			return ESParameterSizeOrAlignment
		}
		err = d.DeleteTitleContent(req.u64(0))
	case IOCtlExportTitleInit:
		if !req.hasVectors(1, 1) || !req.inSizes(8) {
			return ESParameterSizeOrAlignment
		}
		err = d.ExportTitleInit(req.u64(0), req.IO[0])
	case IOCtlExportContentBegin:
		if !req.hasVectors(2, 0) || !req.inSizes(8, 4) {
			return ESParameterSizeOrAlignment
		}
		handle, err = d.ExportContentBegin(req.u64(0), req.u32(1))
	case IOCtlExportContentData:
		if !req.hasVectors(1, 1) || !req.inSizes(4) || len(req.IO[0]) == 0 {
			return ESParameterSizeOrAlignment
		}
		var n int
		n, err = d.ExportContentData(req.u32(0), req.IO[0])
		r.AppendAccessLog(func(e *zerolog.Event) { e.Int("len", n) })
	case IOCtlExportContentEnd:
		if !req.hasVectors(1, 0) || !req.inSizes(4) {
			return ESParameterSizeOrAlignment
		}
		err = d.ExportContentEnd(req.u32(0))
	case IOCtlExportTitleDone:
		err = d.ExportTitleDone()
	default:
		r.Logger().Warn().Uint32("ioctl", uint32(code)).Msg("unsupported title management request")
		return ESParameterSizeOrAlignment
	}
	if err != nil {
		r.AppendAccessLog(func(e *zerolog.Event) { e.Err(err) })
		return CodeOf(err)
	}
	return ReturnCode(handle)
}
