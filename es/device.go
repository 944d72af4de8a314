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

// Package es implements title import and export for an emulated secure
// storage device: tickets and TMDs are installed, encrypted contents are
// streamed in, verified and committed to the NAND tree, and installed titles
// are streamed back out re-encrypted.
package es

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/esnand/estitle/internal/closeonce"
	"github.com/esnand/estitle/lib/esformat"
	"github.com/esnand/estitle/lib/nandpath"
	"github.com/esnand/estitle/lib/sharedcontent"
	"github.com/esnand/estitle/lib/titlecrypt"
	"github.com/esnand/estitle/lib/uidsys"
)

// DeviceKeys holds the console-unique identity and secrets of the device
type DeviceKeys struct {
	// NGID is the console ID that personalised tickets must match
	NGID uint32
	// CommonKey unwraps title keys stored in tickets. When nil the stored
	// key is used as-is.
	CommonKey []byte
	// SharedSecret derives the key used to unpersonalise device-bound
	// tickets. Personalised tickets are rejected when nil.
	SharedSecret esformat.SharedSecretFunc
}

// StaticSharedSecret returns a SharedSecretFunc that ignores the server key
// and always yields key
func StaticSharedSecret(key titlecrypt.Key) esformat.SharedSecretFunc {
	return func([]byte) (titlecrypt.Key, error) { return key, nil }
}

// Verifier checks signatures of installed metadata. Signature checking is
// outside the scope of the engine so the default accepts everything.
type Verifier interface {
	VerifyTicket(*esformat.Ticket) error
	VerifyTMD(*esformat.TMD) error
}

type acceptAll struct{}

func (acceptAll) VerifyTicket(*esformat.Ticket) error { return nil }
func (acceptAll) VerifyTMD(*esformat.TMD) error       { return nil }

type Options struct {
	// Fs holds the NAND tree. Defaults to the host filesystem.
	Fs afero.Fs
	// Root is the configured NAND root; SessionRoot is the NAND of the
	// current guest and defaults to Root.
	Root        string
	SessionRoot string
	Keys        DeviceKeys
	Verifier    Verifier
	// Logger defaults to the global zerolog logger
	Logger *zerolog.Logger
	// VerifyExportHash checks the SHA-1 of each exported content against the
	// TMD when the content is closed
	VerifyExportHash bool
}

// Device serves title management requests for one guest at a time. Methods
// are safe to call from multiple goroutines but are serialized.
type Device struct {
	fs         afero.Fs
	paths      *nandpath.Resolver
	keys       DeviceKeys
	verifier   Verifier
	log        zerolog.Logger
	verifyHash bool
	shared     *sharedcontent.Map

	mu     sync.Mutex
	uids   *uidsys.UIDSys
	state  deviceState
	closed closeonce.Closed
}

// deviceState is one of idleState, *importState or *exportState
type deviceState interface {
	name() string
}

type idleState struct{}

func (idleState) name() string { return "idle" }

// New opens the device and discards any imports left over from a previous
// session.
func New(opts Options) (*Device, error) {
	if opts.Root == "" {
		return nil, errors.New("NAND root is not set")
	}
	d := &Device{
		fs:         opts.Fs,
		paths:      nandpath.New(opts.Root, opts.SessionRoot),
		keys:       opts.Keys,
		verifier:   opts.Verifier,
		verifyHash: opts.VerifyExportHash,
		state:      idleState{},
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.verifier == nil {
		d.verifier = acceptAll{}
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	} else {
		d.log = log.Logger
	}
	d.shared = sharedcontent.New(d.fs, d.paths.SharedDir(nandpath.Session))
	importRoot := d.paths.ImportRoot()
	if err := d.fs.RemoveAll(importRoot); err != nil {
		return nil, fmt.Errorf("cleaning up stale imports: %w", err)
	}
	if err := d.fs.MkdirAll(importRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating import directory: %w", err)
	}
	return d, nil
}

// Paths returns the resolver used to lay out the NAND tree
func (d *Device) Paths() *nandpath.Resolver {
	return d.paths
}

// State names the current mode of the device: idle, importing or exporting
func (d *Device) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.name()
}

// Close abandons any import or export in progress. Staged files of an
// unfinished import are removed and open export contents are closed.
func (d *Device) Close() error {
	return d.closed.Close(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		var err error
		switch st := d.state.(type) {
		case *importState:
			err = d.fs.RemoveAll(d.paths.ImportDir(st.tmd.TitleID()))
		case *exportState:
			err = st.closeAll()
		}
		d.state = idleState{}
		return err
	})
}

// recordUID registers a title in uid.sys. Failures are logged, not returned.
func (d *Device) recordUID(titleID uint64) {
	if d.uids == nil {
		uids, err := uidsys.Open(d.fs, d.paths.UIDSysPath(nandpath.Configured))
		if err != nil {
			d.log.Warn().Err(err).Msg("unable to open uid.sys")
			return
		}
		d.uids = uids
	}
	uid, err := d.uids.GetOrInsert(titleID)
	if err != nil {
		d.log.Warn().Err(err).Str("title", nandpath.FormatTitleID(titleID)).Msg("unable to record title in uid.sys")
		return
	}
	d.log.Debug().Str("title", nandpath.FormatTitleID(titleID)).Uint32("uid", uid).Msg("title uid")
}

func (d *Device) checkOpen(op string) error {
	if d.closed.Closed() {
		return fail(op, ErrParam, errors.New("device is closed"))
	}
	return nil
}
