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

package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestdb/internal/storage/page"
)

func tempStore(t *testing.T, enc EncryptionConfig) (*FileManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ndb")
	m, err := Open(path, enc)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, path
}

func TestFileManagerReadWriteRoundTrip(t *testing.T) {
	m, _ := tempStore(t, EncryptionConfig{})

	id, err := m.AllocatePage()
	require.NoError(t, err)

	var out [page.Size]byte
	copy(out[:], "hello pages")
	require.NoError(t, m.WritePage(id, &out))

	var in [page.Size]byte
	require.NoError(t, m.ReadPage(id, &in))
	assert.Equal(t, out, in)
}

func TestFileManagerNeverWrittenReadsZero(t *testing.T) {
	m, _ := tempStore(t, EncryptionConfig{})

	id, err := m.AllocatePage()
	require.NoError(t, err)

	in := [page.Size]byte{1, 2, 3}
	require.NoError(t, m.ReadPage(id, &in))
	assert.Equal(t, [page.Size]byte{}, in)
}

func TestFileManagerOutOfRange(t *testing.T) {
	m, _ := tempStore(t, EncryptionConfig{})
	var buf [page.Size]byte
	assert.Error(t, m.ReadPage(7, &buf))
	assert.Error(t, m.WritePage(7, &buf))
	assert.Error(t, m.DeallocatePage(7))
}

func TestFileManagerFreeListReuse(t *testing.T) {
	m, _ := tempStore(t, EncryptionConfig{})

	a, err := m.AllocatePage()
	require.NoError(t, err)
	b, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.DeallocatePage(a))
	require.NoError(t, m.DeallocatePage(b))

	// LIFO reuse through the chained free list.
	c, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, b, c)
	d, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, a, d)

	e, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, page.ID(2), e)
}

func TestFileManagerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.ndb")

	m, err := Open(path, EncryptionConfig{})
	require.NoError(t, err)
	id, err := m.AllocatePage()
	require.NoError(t, err)
	var out [page.Size]byte
	copy(out[:], "still here")
	require.NoError(t, m.WritePage(id, &out))
	require.NoError(t, m.Close())

	m2, err := Open(path, EncryptionConfig{})
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, 1, m2.PageCount())

	var in [page.Size]byte
	require.NoError(t, m2.ReadPage(id, &in))
	assert.Equal(t, out, in)
}

func TestFileManagerRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.ndb")
	junk := make([]byte, fileHeaderSize)
	copy(junk, "not a page file")
	require.NoError(t, os.WriteFile(path, junk, 0o600))

	_, err := Open(path, EncryptionConfig{})
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestEncryptedRoundTrip(t *testing.T) {
	enc := EncryptionConfig{Enabled: true, Passphrase: "correct horse"}
	m, path := tempStore(t, enc)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	var out [page.Size]byte
	copy(out[:], "secret tuple bytes")
	require.NoError(t, m.WritePage(id, &out))

	var in [page.Size]byte
	require.NoError(t, m.ReadPage(id, &in))
	assert.Equal(t, out, in)

	// The raw file must not contain the plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret tuple bytes")
}

func TestEncryptedWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enc.ndb")
	m, err := Open(path, EncryptionConfig{Enabled: true, Passphrase: "right"})
	require.NoError(t, err)
	id, err := m.AllocatePage()
	require.NoError(t, err)
	var out [page.Size]byte
	copy(out[:], "sealed")
	require.NoError(t, m.WritePage(id, &out))
	require.NoError(t, m.Close())

	m2, err := Open(path, EncryptionConfig{Enabled: true, Passphrase: "wrong"})
	require.NoError(t, err)
	defer m2.Close()

	var in [page.Size]byte
	assert.Error(t, m2.ReadPage(id, &in), "wrong key must fail authentication")
}

func TestEncryptionFlagMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flag.ndb")
	m, err := Open(path, EncryptionConfig{})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = Open(path, EncryptionConfig{Enabled: true, Passphrase: "p"})
	assert.ErrorIs(t, err, ErrEncryptionMismatch)
}

func TestEncryptionRequiresKeyMaterial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nokey.ndb")
	_, err := Open(path, EncryptionConfig{Enabled: true})
	assert.ErrorIs(t, err, ErrNoKeyMaterial)
}

func TestMemoryManagerBehavesLikeDisk(t *testing.T) {
	m := NewMemoryManager()

	a, err := m.AllocatePage()
	require.NoError(t, err)
	var out [page.Size]byte
	copy(out[:], "in memory")
	require.NoError(t, m.WritePage(a, &out))

	var in [page.Size]byte
	require.NoError(t, m.ReadPage(a, &in))
	assert.Equal(t, out, in)

	require.NoError(t, m.DeallocatePage(a))
	b, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, m.ReadPage(b, &in))
	assert.Equal(t, [page.Size]byte{}, in, "recycled page reads as zeros")
}
