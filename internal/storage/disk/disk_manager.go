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
Package disk implements the page-granular disk store backing the buffer
pool.

File Layout:
============

	┌─────────────────────────────────────────────────────────────┐
	│                    File Header (4KB)                        │
	│  [Magic: "NSTD"] [Version] [PageCount] [FreeListHead] [Flags]│
	├─────────────────────────────────────────────────────────────┤
	│                    Page slot 0 (4KB [+seal])                │
	├─────────────────────────────────────────────────────────────┤
	│                    Page slot 1 (4KB [+seal])                │
	├─────────────────────────────────────────────────────────────┤
	│                       ...                                   │
	└─────────────────────────────────────────────────────────────┘

Page slot 0 is by convention the engine's header page (index root
registrations); the disk manager itself treats it as any other page.

Free List Management:
=====================

Deallocated pages are chained into a free list threaded through the
page slots themselves, with the head kept in the file header:

	FreeListHead → slot 5 → slot 12 → slot 3 → InvalidID

Allocation pops the head when the list is non-empty and otherwise
extends the file by bumping the page count. Never-written slots read
back as all-zero pages.

Encryption:
===========

When the store is created with encryption enabled, every page image is
sealed with AES-256-GCM (see encryption.go). The sealed envelope has a
fixed overhead, so slots keep a constant width and logical page ids map
to constant file offsets. A file records at creation time whether its
slots are sealed; the flag cannot be toggled on an existing file.
*/
package disk

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"

	nesterrors "nestdb/internal/errors"
	"nestdb/internal/logging"
	"nestdb/internal/storage/page"
)

// Manager is the page-granular I/O interface consumed by the buffer pool.
type Manager interface {
	// AllocatePage reserves a fresh logical page id.
	AllocatePage() (page.ID, error)

	// DeallocatePage returns a page id to the allocator for reuse.
	DeallocatePage(id page.ID) error

	// ReadPage fills buf with the on-disk image of the page.
	ReadPage(id page.ID, buf *[page.Size]byte) error

	// WritePage persists the page image.
	WritePage(id page.ID, data *[page.Size]byte) error

	// Close releases the underlying resources.
	Close() error
}

const (
	fileMagic      = 0x4454534E // "NSTD" little-endian: 'N','S','T','D'
	fileVersion    = 1
	fileHeaderSize = page.Size

	flagEncrypted = 1 << 0

	magicOffset     = 0
	versionOffset   = 4
	pageCountOffset = 8
	freeHeadOffset  = 12
	flagsOffset     = 16
)

var (
	// ErrBadMagic is returned when opening a file that is not a NestDB store.
	ErrBadMagic = errors.New("not a nestdb page file (bad magic)")

	// ErrBadVersion is returned for an unsupported file format version.
	ErrBadVersion = errors.New("unsupported page file version")

	// ErrEncryptionMismatch is returned when the open options disagree with
	// the file's recorded encryption flag.
	ErrEncryptionMismatch = errors.New("page file encryption flag does not match options")

	// ErrPageOutOfRange is returned for an id that was never allocated.
	ErrPageOutOfRange = errors.New("page id out of range")
)

// FileManager is the file-backed Manager implementation.
type FileManager struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	pageCount int32
	freeHead  page.ID
	cipher    *pageCipher
	slotSize  int64
	log       *logging.Logger
}

// Open opens or creates a page file at path. The encryption configuration
// must match the file when it already exists.
func Open(path string, enc EncryptionConfig) (*FileManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, nesterrors.IOError("open", err)
	}

	m := &FileManager{
		file:     file,
		path:     path,
		freeHead: page.InvalidID,
		slotSize: page.Size,
		log:      logging.NewLogger("disk"),
	}
	if enc.Enabled {
		cipher, err := newPageCipher(enc)
		if err != nil {
			file.Close()
			return nil, err
		}
		m.cipher = cipher
		m.slotSize = page.Size + sealOverhead
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nesterrors.IOError("stat", err)
	}
	if info.Size() == 0 {
		if err := m.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		m.log.Info("Created page file", "path", path, "encrypted", enc.Enabled)
		return m, nil
	}
	if err := m.readHeader(enc.Enabled); err != nil {
		file.Close()
		return nil, err
	}
	m.log.Info("Opened page file", "path", path, "pages", m.pageCount, "encrypted", enc.Enabled)
	return m, nil
}

// writeHeader persists the file header block.
func (m *FileManager) writeHeader() error {
	var header [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(header[magicOffset:], fileMagic)
	binary.LittleEndian.PutUint32(header[versionOffset:], fileVersion)
	binary.LittleEndian.PutUint32(header[pageCountOffset:], uint32(m.pageCount))
	binary.LittleEndian.PutUint32(header[freeHeadOffset:], uint32(int32(m.freeHead)))
	var flags uint32
	if m.cipher != nil {
		flags |= flagEncrypted
	}
	binary.LittleEndian.PutUint32(header[flagsOffset:], flags)
	if _, err := m.file.WriteAt(header[:], 0); err != nil {
		return nesterrors.IOError("write header", err)
	}
	return nil
}

// readHeader loads and validates the file header block.
func (m *FileManager) readHeader(encrypted bool) error {
	var header [fileHeaderSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(m.file, 0, fileHeaderSize), header[:]); err != nil {
		return nesterrors.IOError("read header", err)
	}
	if binary.LittleEndian.Uint32(header[magicOffset:]) != fileMagic {
		return ErrBadMagic
	}
	if binary.LittleEndian.Uint32(header[versionOffset:]) != fileVersion {
		return ErrBadVersion
	}
	m.pageCount = int32(binary.LittleEndian.Uint32(header[pageCountOffset:]))
	m.freeHead = page.ID(int32(binary.LittleEndian.Uint32(header[freeHeadOffset:])))
	flags := binary.LittleEndian.Uint32(header[flagsOffset:])
	if (flags&flagEncrypted != 0) != encrypted {
		return ErrEncryptionMismatch
	}
	return nil
}

// slotOffset returns the file offset of a page slot.
func (m *FileManager) slotOffset(id page.ID) int64 {
	return fileHeaderSize + int64(id)*m.slotSize
}

// AllocatePage pops the free list or extends the file.
func (m *FileManager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.freeHead != page.InvalidID {
		id := m.freeHead
		next, err := m.readFreeNext(id)
		if err != nil {
			return page.InvalidID, err
		}
		m.freeHead = next
		if err := m.writeHeader(); err != nil {
			return page.InvalidID, err
		}
		m.log.Debug("Reused free page", "page_id", id)
		return id, nil
	}

	id := page.ID(m.pageCount)
	m.pageCount++
	if err := m.writeHeader(); err != nil {
		m.pageCount--
		return page.InvalidID, err
	}
	return id, nil
}

// DeallocatePage pushes the page onto the free list.
func (m *FileManager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || int32(id) >= m.pageCount {
		return ErrPageOutOfRange
	}
	if err := m.writeFreeNext(id, m.freeHead); err != nil {
		return err
	}
	m.freeHead = id
	if err := m.writeHeader(); err != nil {
		return err
	}
	m.log.Debug("Deallocated page", "page_id", id)
	return nil
}

// readFreeNext reads the chained next pointer from a freed slot.
func (m *FileManager) readFreeNext(id page.ID) (page.ID, error) {
	var buf [5]byte
	n, err := m.file.ReadAt(buf[:], m.slotOffset(id))
	if err != nil && err != io.EOF {
		return page.InvalidID, nesterrors.IOError("read free slot", err)
	}
	if m.cipher != nil {
		if n < 5 || buf[0] != markerFree {
			return page.InvalidID, nil
		}
		return page.ID(int32(binary.LittleEndian.Uint32(buf[1:]))), nil
	}
	if n < 4 {
		return page.InvalidID, nil
	}
	return page.ID(int32(binary.LittleEndian.Uint32(buf[:4]))), nil
}

// writeFreeNext stores the chained next pointer into a freed slot.
func (m *FileManager) writeFreeNext(id page.ID, next page.ID) error {
	if m.cipher != nil {
		var buf [5]byte
		buf[0] = markerFree
		binary.LittleEndian.PutUint32(buf[1:], uint32(int32(next)))
		if _, err := m.file.WriteAt(buf[:], m.slotOffset(id)); err != nil {
			return nesterrors.IOError("write free slot", err)
		}
		return nil
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(next)))
	if _, err := m.file.WriteAt(buf[:], m.slotOffset(id)); err != nil {
		return nesterrors.IOError("write free slot", err)
	}
	return nil
}

// ReadPage fills buf with the page image. Slots that were allocated but
// never written read back as zeros.
func (m *FileManager) ReadPage(id page.ID, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || int32(id) >= m.pageCount {
		return ErrPageOutOfRange
	}

	slot := make([]byte, m.slotSize)
	n, err := m.file.ReadAt(slot, m.slotOffset(id))
	if err != nil && err != io.EOF {
		return nesterrors.IOError("read", err)
	}
	slot = slot[:n]

	if m.cipher == nil {
		for i := range buf {
			buf[i] = 0
		}
		copy(buf[:], slot)
		return nil
	}

	if len(slot) == 0 || slot[0] != markerSealed {
		// Never written or on the free list: logical zero page.
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	plain, err := m.cipher.open(slot)
	if err != nil {
		return nesterrors.CorruptPage(int64(id), err.Error())
	}
	if len(plain) != page.Size {
		return nesterrors.CorruptPage(int64(id), "sealed image has wrong size")
	}
	copy(buf[:], plain)
	return nil
}

// WritePage persists the page image, sealing it first when encryption is on.
func (m *FileManager) WritePage(id page.ID, data *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || int32(id) >= m.pageCount {
		return ErrPageOutOfRange
	}

	if m.cipher == nil {
		if _, err := m.file.WriteAt(data[:], m.slotOffset(id)); err != nil {
			return nesterrors.IOError("write", err)
		}
		return nil
	}
	envelope, err := m.cipher.seal(data[:])
	if err != nil {
		return nesterrors.IOError("seal", err)
	}
	if _, err := m.file.WriteAt(envelope, m.slotOffset(id)); err != nil {
		return nesterrors.IOError("write", err)
	}
	return nil
}

// PageCount returns the number of allocated page slots.
func (m *FileManager) PageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.pageCount)
}

// Sync flushes the file to stable storage.
func (m *FileManager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return nesterrors.IOError("sync", err)
	}
	return nil
}

// Close syncs and closes the page file.
func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return nesterrors.IOError("sync", err)
	}
	return m.file.Close()
}

// MemoryManager is an in-memory Manager used by tests and by callers that
// want a throwaway store.
type MemoryManager struct {
	mu       sync.Mutex
	pages    map[page.ID]*[page.Size]byte
	freeList []page.ID
	next     page.ID
}

// NewMemoryManager returns an empty in-memory page store.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{pages: make(map[page.ID]*[page.Size]byte)}
}

// AllocatePage reuses a freed id or mints the next one.
func (m *MemoryManager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id, nil
	}
	id := m.next
	m.next++
	return id, nil
}

// DeallocatePage drops the page image and recycles the id.
func (m *MemoryManager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
	m.freeList = append(m.freeList, id)
	return nil
}

// ReadPage copies the stored image, or zeros for a never-written page.
func (m *MemoryManager) ReadPage(id page.ID, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= m.next {
		return ErrPageOutOfRange
	}
	stored, ok := m.pages[id]
	if !ok {
		*buf = [page.Size]byte{}
		return nil
	}
	*buf = *stored
	return nil
}

// WritePage stores a copy of the page image.
func (m *MemoryManager) WritePage(id page.ID, data *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= m.next {
		return ErrPageOutOfRange
	}
	stored := *data
	m.pages[id] = &stored
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryManager) Close() error {
	return nil
}
