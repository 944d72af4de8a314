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

	"github.com/esnand/estitle/lib/titlecrypt"
)

var ErrTicketTooSmall = errors.New("ticket is too small")

// Ticket wraps a signed ticket blob. The only mutation allowed is
// Unpersonalise, which rewrites the embedded title key.
type Ticket struct {
	raw    []byte
	offset int
	Body   TicketBody
}

// SharedSecretFunc derives the AES key protecting a personalised title key
// from the ticket server's public key and the device's private key.
type SharedSecretFunc func(serverPublicKey []byte) (titlecrypt.Key, error)

func ParseTicket(raw []byte) (*Ticket, error) {
	if len(raw) < 4 {
		return nil, ErrTicketTooSmall
	}
	sigType := binary.BigEndian.Uint32(raw)
	offset := SignatureSize(sigType)
	if offset == 0 {
		return nil, fmt.Errorf("invalid ticket signature type %08x", sigType)
	}
	if len(raw) < offset+TicketSize {
		return nil, ErrTicketTooSmall
	}
	t := &Ticket{raw: raw, offset: offset}
	if err := binary.Read(bytes.NewReader(raw[offset:]), binary.BigEndian, &t.Body); err != nil {
		return nil, fmt.Errorf("ticket body: %w", err)
	}
	return t, nil
}

// NewTicket serializes a ticket with an empty signature of the given type
func NewTicket(sigType uint32, body TicketBody) (*Ticket, error) {
	size := SignatureSize(sigType)
	if size == 0 {
		return nil, fmt.Errorf("invalid ticket signature type %08x", sigType)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size+TicketSize))
	_ = binary.Write(buf, binary.BigEndian, sigType)
	buf.Write(make([]byte, size-4))
	_ = binary.Write(buf, binary.BigEndian, body)
	return ParseTicket(buf.Bytes())
}

// Raw returns the ticket blob, including any personalisation changes
func (t *Ticket) Raw() []byte {
	return t.raw
}

// Offset returns where the first ticket body starts
func (t *Ticket) Offset() int {
	return t.offset
}

// NumTickets returns how many ticket records the blob contains. Most ticket
// files hold exactly one.
func (t *Ticket) NumTickets() int {
	return len(t.raw) / (t.offset + TicketSize)
}

func (t *Ticket) TitleID() uint64 {
	return t.Body.TitleID
}

func (t *Ticket) TicketID() uint64 {
	return t.Body.TicketID
}

// DeviceID returns the console the ticket is personalised for, or 0
func (t *Ticket) DeviceID() uint32 {
	return t.Body.DeviceID
}

// EncryptedTitleKey returns the title key field as stored
func (t *Ticket) EncryptedTitleKey() titlecrypt.Key {
	return t.Body.TitleKey
}

// TitleKey unwraps the title key with the common key, using the title ID as
// IV. A nil common key returns the stored field unchanged.
func (t *Ticket) TitleKey(commonKey []byte) (titlecrypt.Key, error) {
	if commonKey == nil {
		return t.Body.TitleKey, nil
	}
	iv := titlecrypt.IDIV(t.Body.TitleID)
	plain, err := titlecrypt.Decrypt(commonKey, iv[:], t.Body.TitleKey[:])
	if err != nil {
		return titlecrypt.Key{}, fmt.Errorf("unwrapping title key: %w", err)
	}
	var key titlecrypt.Key
	copy(key[:], plain)
	return key, nil
}

// Unpersonalise decrypts a device-specific title key in place, using the
// shared secret for this ticket's server key and the ticket ID as IV.
func (t *Ticket) Unpersonalise(secret SharedSecretFunc) error {
	if secret == nil {
		return errors.New("no device secret available to unpersonalise ticket")
	}
	body := t.raw[t.offset:]
	key, err := secret(body[offServerPublicKey : offServerPublicKey+len(t.Body.ServerPublicKey)])
	if err != nil {
		return err
	}
	iv := titlecrypt.IDIV(t.Body.TicketID)
	plain, err := titlecrypt.Decrypt(key[:], iv[:], t.Body.TitleKey[:])
	if err != nil {
		return err
	}
	copy(body[offTitleKey:offTitleKey+titlecrypt.KeySize], plain)
	copy(t.Body.TitleKey[:], plain)
	return nil
}

// View returns the ticket view of the n'th ticket in the blob: a big-endian
// view number followed by the ticket fields starting at the ticket ID.
func (t *Ticket) View(n int) ([]byte, error) {
	if n < 0 || n >= t.NumTickets() {
		return nil, fmt.Errorf("ticket %d out of range", n)
	}
	start := n*(t.offset+TicketSize) + t.offset + offTicketID
	view := make([]byte, 4, TicketViewSize)
	binary.BigEndian.PutUint32(view, uint32(n))
	view = append(view, t.raw[start:start+TicketViewSize-4]...)
	return view, nil
}
