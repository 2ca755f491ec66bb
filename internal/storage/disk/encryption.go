/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
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

/*
Page encryption for data at rest.

Encryption Overview:
====================

NestDB can seal every page image with AES-256-GCM before it reaches disk:
  - Confidentiality: page bytes are unreadable without the key
  - Integrity: GCM provides authenticated encryption
  - Nonce uniqueness: each seal uses a fresh random nonce

Key Management:
===============

Keys can be provided in two ways:
 1. Direct 32-byte key: for production use with external key management
 2. Passphrase: derived using PBKDF2 with SHA-256

Each page is sealed independently so the disk manager keeps random access;
the sealed envelope has fixed overhead, giving every logical page id a
constant file offset.
*/
package disk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptionConfig holds the configuration for page encryption.
type EncryptionConfig struct {
	// Enabled indicates whether encryption is enabled.
	Enabled bool

	// Key is the 32-byte AES-256 encryption key.
	// If empty and Passphrase is set, the key is derived from the passphrase.
	Key []byte

	// Passphrase is used to derive the encryption key if Key is not set.
	Passphrase string

	// Salt is used for key derivation from passphrase.
	// If empty, a default salt is used (not recommended for production).
	Salt []byte
}

// DefaultSalt is used when no salt is provided for key derivation.
// In production, always use a unique salt per database.
var DefaultSalt = []byte("nestdb-default-salt-v1")

// KeyDerivationIterations is the number of PBKDF2 iterations.
const KeyDerivationIterations = 100000

const (
	keySize   = 32
	nonceSize = 12
	gcmTag    = 16

	// A marker byte prefixes every envelope: 0 = never written, 1 = sealed,
	// 2 = on the free list (plaintext next pointer follows).
	markerZero   byte = 0
	markerSealed byte = 1
	markerFree   byte = 2

	// sealOverhead is the fixed per-page envelope cost on disk.
	sealOverhead = 1 + nonceSize + gcmTag
)

var (
	// ErrNoKeyMaterial is returned when encryption is enabled without a key
	// or passphrase.
	ErrNoKeyMaterial = errors.New("encryption enabled but no key or passphrase provided")

	// ErrSealedPage is returned when a sealed envelope fails authentication.
	ErrSealedPage = errors.New("page envelope failed authentication")
)

// pageCipher seals and opens page images.
type pageCipher struct {
	aead cipher.AEAD
}

// newPageCipher builds the AEAD from the configured key material.
func newPageCipher(cfg EncryptionConfig) (*pageCipher, error) {
	key := cfg.Key
	if len(key) == 0 {
		if cfg.Passphrase == "" {
			return nil, ErrNoKeyMaterial
		}
		salt := cfg.Salt
		if len(salt) == 0 {
			salt = DefaultSalt
		}
		key = pbkdf2.Key([]byte(cfg.Passphrase), salt, KeyDerivationIterations, keySize, sha256.New)
	}
	if len(key) != keySize {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &pageCipher{aead: aead}, nil
}

// seal encrypts a page image into an envelope of exactly len(plain)+sealOverhead bytes.
func (c *pageCipher) seal(plain []byte) ([]byte, error) {
	envelope := make([]byte, 1+nonceSize, 1+nonceSize+len(plain)+gcmTag)
	envelope[0] = markerSealed
	nonce := envelope[1 : 1+nonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(envelope, nonce, plain, nil), nil
}

// open authenticates and decrypts a sealed envelope.
func (c *pageCipher) open(envelope []byte) ([]byte, error) {
	if len(envelope) < 1+nonceSize+gcmTag || envelope[0] != markerSealed {
		return nil, ErrSealedPage
	}
	nonce := envelope[1 : 1+nonceSize]
	plain, err := c.aead.Open(nil, nonce, envelope[1+nonceSize:], nil)
	if err != nil {
		return nil, ErrSealedPage
	}
	return plain, nil
}
