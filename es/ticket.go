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
	"time"

	"github.com/esnand/estitle/lib/atomicfile"
	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
)

// AddTicket validates a signed ticket, unpersonalises it if it is bound to
// this console, and installs it.
func (d *Device) AddTicket(raw []byte) (err error) {
	const op = "AddTicket"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	ticket, err := esformat.ParseTicket(raw)
	if err != nil {
		return fail(op, ErrParam, err)
	}
	if err := d.verifier.VerifyTicket(ticket); err != nil {
		return fail(op, ErrParam, err)
	}
	title := nandpath.FormatTitleID(ticket.TitleID())
	if deviceID := ticket.DeviceID(); deviceID != 0 {
		if deviceID != d.keys.NGID {
			d.log.Warn().
				Str("title", title).
				Uint32("ticket_device", deviceID).
				Uint32("device", d.keys.NGID).
				Msg("ticket device ID mismatch")
			return fail(op, ErrDeviceIDMismatch, nil)
		}
		if err := ticket.Unpersonalise(d.keys.SharedSecret); err != nil {
			d.log.Error().Err(err).Str("title", title).Msg("failed to unpersonalise ticket")
			return fail(op, statusOf(err, ErrParam), err)
		}
	}
	name := d.paths.TicketPath(ticket.TitleID(), nandpath.Session)
	if err := atomicfile.WriteFile(d.fs, name, ticket.Raw()); err != nil {
		d.log.Error().Err(err).Str("path", name).Msg("failed to write ticket")
		return fail(op, ErrWriteFailure, err)
	}
	d.log.Info().Str("title", title).Msg("imported ticket")
	return nil
}

// DeleteTicket removes the installed ticket of a title
func (d *Device) DeleteTicket(titleID uint64) (err error) {
	const op = "DeleteTicket"
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if err := d.fs.Remove(d.paths.TicketPath(titleID, nandpath.Session)); err != nil {
		return fail(op, ErrParam, err)
	}
	d.log.Info().Str("title", nandpath.FormatTitleID(titleID)).Msg("deleted ticket")
	return nil
}

// statusOf keeps the code carried by err, if any, otherwise uses def
func statusOf(err error, def *Status) *Status {
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	var coded interface{ Code() ReturnCode }
	if errors.As(err, &coded) {
		return &Status{code: coded.Code(), msg: err.Error()}
	}
	return def
}
