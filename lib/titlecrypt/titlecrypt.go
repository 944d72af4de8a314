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

// Package titlecrypt holds the AES-128-CBC and SHA-1 primitives used to
// protect title contents.
package titlecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"errors"
	"fmt"
)

const (
	KeySize   = 16
	BlockSize = aes.BlockSize
	HashSize  = sha1.Size
)

type (
	Key  [KeySize]byte
	IV   [BlockSize]byte
	Hash [HashSize]byte
)

var ErrUnaligned = errors.New("input length is not a multiple of the AES block size")

// ContentIV derives the IV for a title content: the big-endian content index
// in the first two bytes, zero elsewhere.
func ContentIV(index uint16) IV {
	var iv IV
	iv[0] = byte(index >> 8)
	iv[1] = byte(index)
	return iv
}

// IDIV zero-extends a 64-bit identifier (title ID, ticket ID) into an IV
func IDIV(id uint64) IV {
	var iv IV
	for i := 0; i < 8; i++ {
		iv[i] = byte(id >> (56 - 8*i))
	}
	return iv
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid AES-128 key length %d", len(key))
	}
	return aes.NewCipher(key)
}

// Decrypt runs AES-128-CBC decryption over src. The length of src must be a
// multiple of the block size.
func Decrypt(key, iv, src []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(src)%BlockSize != 0 {
		return nil, ErrUnaligned
	}
	dst := make([]byte, len(src))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
	return dst, nil
}

// Encrypt runs AES-128-CBC encryption over src. The length of src must be a
// multiple of the block size.
func Encrypt(key, iv, src []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(src)%BlockSize != 0 {
		return nil, ErrUnaligned
	}
	dst := make([]byte, len(src))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(dst, src)
	return dst, nil
}

func Sum(data []byte) Hash {
	return sha1.Sum(data)
}

// AlignUp rounds n up to the next multiple of align
func AlignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// Chain encrypts a stream in several calls, carrying the last ciphertext
// block of each call over as the IV of the next one.
type Chain struct {
	block cipher.Block
	iv    IV
}

func NewChain(key []byte, iv IV) (*Chain, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	return &Chain{block: block, iv: iv}, nil
}

// Encrypt encrypts one block-aligned chunk and advances the chain
func (c *Chain) Encrypt(src []byte) ([]byte, error) {
	if len(src)%BlockSize != 0 {
		return nil, ErrUnaligned
	}
	dst := make([]byte, len(src))
	if len(src) == 0 {
		return dst, nil
	}
	cipher.NewCBCEncrypter(c.block, c.iv[:]).CryptBlocks(dst, src)
	copy(c.iv[:], dst[len(dst)-BlockSize:])
	return dst, nil
}

// IV returns the IV the next call to Encrypt will use
func (c *Chain) IV() IV {
	return c.iv
}
