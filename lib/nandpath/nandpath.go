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

// Package nandpath computes the canonical locations of titles, tickets and
// import staging areas inside an emulated NAND tree.
package nandpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Root selects which NAND tree a path is resolved against.
type Root int

const (
	// Configured is the global NAND, independent of the running guest.
	Configured Root = iota
	// Session is the NAND of the guest currently being served.
	Session
)

func (r Root) String() string {
	switch r {
	case Configured:
		return "configured"
	case Session:
		return "session"
	default:
		return "Root(" + strconv.Itoa(int(r)) + ")"
	}
}

const (
	TMDName       = "title.tmd"
	SharedDir     = "/shared1"
	SharedMapName = "content.map"
	UIDSysPath    = "/sys/uid.sys"
)

// Resolver maps title IDs onto paths below the two NAND roots. Roots are
// stored without a trailing slash.
type Resolver struct {
	configured string
	session    string
}

// New returns a resolver for the given roots. An empty session root falls
// back to the configured one.
func New(configured, session string) *Resolver {
	if session == "" {
		session = configured
	}
	return &Resolver{
		configured: strings.TrimRight(configured, "/"),
		session:    strings.TrimRight(session, "/"),
	}
}

// RootPath returns the base directory of the selected NAND tree
func (r *Resolver) RootPath(root Root) string {
	if root == Session {
		return r.session
	}
	return r.configured
}

// Split returns the upper and lower halves of a title ID
func Split(titleID uint64) (uint32, uint32) {
	return uint32(titleID >> 32), uint32(titleID)
}

// TitleDir returns <root>/title/<hi8>/<lo8>/
func (r *Resolver) TitleDir(titleID uint64, root Root) string {
	hi, lo := Split(titleID)
	return fmt.Sprintf("%s/title/%08x/%08x/", r.RootPath(root), hi, lo)
}

// TitleContentDir returns <root>/title/<hi8>/<lo8>/content/
func (r *Resolver) TitleContentDir(titleID uint64, root Root) string {
	return r.TitleDir(titleID, root) + "content/"
}

// TitleDataDir returns <root>/title/<hi8>/<lo8>/data/
func (r *Resolver) TitleDataDir(titleID uint64, root Root) string {
	return r.TitleDir(titleID, root) + "data/"
}

// ContentPath returns the location of a private content in the title's
// content directory.
func (r *Resolver) ContentPath(titleID uint64, contentID uint32, root Root) string {
	return r.TitleContentDir(titleID, root) + ContentName(contentID)
}

func (r *Resolver) TMDPath(titleID uint64, root Root) string {
	return r.TitleContentDir(titleID, root) + TMDName
}

// TicketPath returns <root>/ticket/<hi8>/<lo8>.tik
func (r *Resolver) TicketPath(titleID uint64, root Root) string {
	hi, lo := Split(titleID)
	return fmt.Sprintf("%s/ticket/%08x/%08x.tik", r.RootPath(root), hi, lo)
}

// ImportRoot returns the directory holding every in-flight import
func (r *Resolver) ImportRoot() string {
	return r.session + "/import"
}

// ImportDir returns <session>/import/<hi8>/<lo8>
func (r *Resolver) ImportDir(titleID uint64) string {
	hi, lo := Split(titleID)
	return fmt.Sprintf("%s/%08x/%08x", r.ImportRoot(), hi, lo)
}

func (r *Resolver) ImportContentDir(titleID uint64) string {
	return r.ImportDir(titleID) + "/content"
}

// ImportContentPath returns the staging location of a single content
func (r *Resolver) ImportContentPath(titleID uint64, contentID uint32) string {
	return r.ImportContentDir(titleID) + "/" + ContentName(contentID)
}

func (r *Resolver) ImportTMDPath(titleID uint64) string {
	return r.ImportContentDir(titleID) + "/" + TMDName
}

// SharedDir returns the shared contents directory of a root
func (r *Resolver) SharedDir(root Root) string {
	return r.RootPath(root) + SharedDir
}

func (r *Resolver) SharedMapPath(root Root) string {
	return r.SharedDir(root) + "/" + SharedMapName
}

func (r *Resolver) UIDSysPath(root Root) string {
	return r.RootPath(root) + UIDSysPath
}

// ContentName formats a content ID as an .app filename
func ContentName(contentID uint32) string {
	return fmt.Sprintf("%08x.app", contentID)
}

// IsTitleIDPart reports whether s is one 8-digit hex half of a title ID
func IsTitleIDPart(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// JoinTitleID reassembles a title ID from its two directory name halves
func JoinTitleID(hi, lo string) (uint64, error) {
	if !IsTitleIDPart(hi) || !IsTitleIDPart(lo) {
		return 0, fmt.Errorf("invalid title id components %q/%q", hi, lo)
	}
	h, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return 0, err
	}
	l, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return 0, err
	}
	return h<<32 | l, nil
}

// ParseTitleID accepts "0001000048414141" or "00010000/48414141" (an
// optional 0x prefix is ignored).
func ParseTitleID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if hi, lo, ok := strings.Cut(s, "/"); ok {
		return JoinTitleID(hi, lo)
	}
	if len(s) != 16 {
		return 0, fmt.Errorf("invalid title id %q", s)
	}
	return JoinTitleID(s[:8], s[8:])
}

// FormatTitleID renders a title ID as 16 lowercase hex digits
func FormatTitleID(titleID uint64) string {
	return fmt.Sprintf("%016x", titleID)
}
