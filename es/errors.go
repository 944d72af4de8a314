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
	"strconv"
)

// ReturnCode is the value reported to the guest for a request. Non-negative
// values are success results such as handles.
type ReturnCode int32

const (
	IPCSuccess                 ReturnCode = 0
	FSEAccess                  ReturnCode = -102
	FSENoEnt                   ReturnCode = -106
	ESInvalidTMD               ReturnCode = -106
	ESReadLessDataThanExpected ReturnCode = -1009
	ESWriteFailure             ReturnCode = -1010
	ESParameterSizeOrAlignment ReturnCode = -1017
	ESDeviceIDMismatch         ReturnCode = -1020
	ESHashDoesntMatch          ReturnCode = -1022
	ESNoTicketInstalled        ReturnCode = -1028
)

// Error allows a bare code to be returned where an error is expected, for
// example from a SharedSecretFunc that wants to surface a specific code.
func (c ReturnCode) Error() string {
	return "es return code " + strconv.FormatInt(int64(c), 10)
}

func (c ReturnCode) Code() ReturnCode { return c }

// Status is the kind of an engine failure. Compare against the Err*
// variables with errors.Is.
type Status struct {
	code ReturnCode
	msg  string
}

func (s *Status) Error() string    { return s.msg }
func (s *Status) Code() ReturnCode { return s.code }

var (
	ErrParam                = &Status{ESParameterSizeOrAlignment, "invalid parameter"}
	ErrInvalidTMD           = &Status{ESInvalidTMD, "invalid tmd"}
	ErrDeviceIDMismatch     = &Status{ESDeviceIDMismatch, "ticket is personalised for another device"}
	ErrNoTicketInstalled    = &Status{ESNoTicketInstalled, "no ticket installed"}
	ErrHashMismatch         = &Status{ESHashDoesntMatch, "content hash does not match"}
	ErrWriteFailure         = &Status{ESWriteFailure, "write failure"}
	ErrReadLessThanExpected = &Status{ESReadLessDataThanExpected, "read less data than expected"}
	ErrNotFound             = &Status{FSENoEnt, "no such file or directory"}
	ErrAccess               = &Status{FSEAccess, "access denied"}
)

// Error is returned by every engine operation. It matches both its Status
// and the underlying cause with errors.Is.
type Error struct {
	Op     string
	Status *Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Err)
	}
	return e.Op + ": " + e.Status.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Status}
	}
	return []error{e.Status, e.Err}
}

func (e *Error) Code() ReturnCode {
	return e.Status.code
}

func fail(op string, status *Status, err error) error {
	return &Error{Op: op, Status: status, Err: err}
}

// CodeOf maps an error returned by the engine onto the code reported to the
// guest. Errors that carry no code are reported as parameter errors.
func CodeOf(err error) ReturnCode {
	if err == nil {
		return IPCSuccess
	}
	var coded interface{ Code() ReturnCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ESParameterSizeOrAlignment
}
