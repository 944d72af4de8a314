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

package shared

import (
	"github.com/spf13/pflag"

	"github.com/esnand/estitle/lib/nandpath"
)

// TitleID is a pflag.Value accepting 0001000048414141 or 00010000/48414141
type TitleID uint64

var _ pflag.Value = (*TitleID)(nil)

func (t *TitleID) String() string {
	return nandpath.FormatTitleID(uint64(*t))
}

func (t *TitleID) Set(s string) error {
	v, err := nandpath.ParseTitleID(s)
	if err != nil {
		return err
	}
	*t = TitleID(v)
	return nil
}

func (t *TitleID) Type() string {
	return "title-id"
}

// ParseTitleIDArg parses a title ID given as a positional argument
func ParseTitleIDArg(s string) (uint64, error) {
	var t TitleID
	err := t.Set(s)
	return uint64(t), err
}
