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

package index

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// KeySize is the fixed width of an index key in bytes.
const KeySize = 8

// Key is a fixed-width index key. Interpretation is up to the comparator:
// a big-endian signed integer or a (possibly collated) string prefix.
type Key [KeySize]byte

// Int64Key encodes a signed integer as a key.
func Int64Key(v int64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], uint64(v))
	return k
}

// Int64 decodes the key as a signed integer.
func (k Key) Int64() int64 {
	return int64(binary.BigEndian.Uint64(k[:]))
}

// StringKey encodes up to KeySize bytes of a string, NUL padded.
func StringKey(s string) Key {
	var k Key
	copy(k[:], s)
	return k
}

// KeyString decodes the key as a NUL-trimmed string.
func (k Key) KeyString() string {
	end := 0
	for end < KeySize && k[end] != 0 {
		end++
	}
	return string(k[:end])
}

// KeyComparator defines the ordering of keys in an index.
type KeyComparator interface {
	// Compare returns -1, 0 or 1 as a orders before, equal to, or after b.
	Compare(a, b Key) int
}

// Int64Comparator orders keys as big-endian signed integers. The encoding
// is chosen so that for nonnegative integers byte order equals numeric
// order; the sign bit is handled explicitly.
type Int64Comparator struct{}

// Compare implements KeyComparator.
func (Int64Comparator) Compare(a, b Key) int {
	av, bv := a.Int64(), b.Int64()
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// BinaryComparator orders keys by raw byte comparison.
type BinaryComparator struct{}

// Compare implements KeyComparator.
func (BinaryComparator) Compare(a, b Key) int {
	return bytes.Compare(a[:], b[:])
}

// CollatedComparator orders string keys according to language collation
// rules, so e.g. case differences and accents order the way a user of
// that language expects rather than by code point.
type CollatedComparator struct {
	collator *collate.Collator
}

// NewCollatedComparator creates a comparator for the given BCP 47 language
// tag (e.g. "en-US", "de", "sv"). Unknown tags fall back to und (root
// collation).
func NewCollatedComparator(langTag string) *CollatedComparator {
	tag, err := language.Parse(langTag)
	if err != nil {
		tag = language.Und
	}
	return &CollatedComparator{collator: collate.New(tag)}
}

// Compare implements KeyComparator. Equal collation weight falls back to
// byte order so distinct keys never compare equal.
func (c *CollatedComparator) Compare(a, b Key) int {
	as, bs := a.KeyString(), b.KeyString()
	if r := c.collator.CompareString(as, bs); r != 0 {
		return r
	}
	return bytes.Compare(a[:], b[:])
}
