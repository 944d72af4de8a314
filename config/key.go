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

package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const keySize = 16

// HexKey is an AES-128 key written in the config as a hex string
type HexKey []byte

func (k *HexKey) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		*k = nil
		return nil
	}
	blob, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid hex key: %w", value.Line, err)
	}
	*k = blob
	return nil
}

func (k HexKey) MarshalYAML() (interface{}, error) {
	return hex.EncodeToString(k), nil
}

func (k HexKey) validate() error {
	if k != nil && len(k) != keySize {
		return fmt.Errorf("key must be %d bytes, got %d", keySize, len(k))
	}
	return nil
}

// Key returns the key as a fixed size array, and false if it is not set
func (k HexKey) Key() ([keySize]byte, bool) {
	var key [keySize]byte
	if len(k) != keySize {
		return key, false
	}
	copy(key[:], k)
	return key, true
}
