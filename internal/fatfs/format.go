package fatfs

import (
	"encoding/binary"
	"time"
)

// On-disk constants, bit-exact with the reference layout.
const (
	// EntrySize is the packed size of a directory entry in bytes.
	EntrySize = 64

	nameSize = 32

	// FAT sentinel values.
	fatFree = 0x0000
	fatEOC  = 0xFFFF // end of chain

	// EmptyFirstBlock is the first_block value of a zero-length file.
	EmptyFirstBlock = 0xFFFF

	// RootBlock is the FAT index reserved for the root directory's first
	// block: entry 1 always holds it.
	RootBlock = 1

	// Name-byte sentinels for a directory entry's first name byte.
	nameEOD     = 0x00 // end-of-directory slot
	nameCleaned = 0x01 // deleted entry, data reclaimed
	nameRemoved = 0x02 // deleted entry, data still referenced
)

// File types.
const (
	TypeUnknown = 0
	TypeRegular = 1
	TypeDir     = 2
	TypeLink    = 4
)

// Permission bits.
const (
	PermExecute = 1 << 0
	PermRead    = 1 << 1
	PermWrite   = 1 << 2
)

// DirEntry is the in-memory representation of a 64-byte directory entry.
type DirEntry struct {
	Name        [nameSize]byte
	Size        uint32
	FirstBlock  uint16
	Type        uint8
	Perm        uint8
	MTime       int64
	_reserved16 [16]byte
}

// NameString returns the NUL-terminated name field as a Go string.
func (e *DirEntry) NameString() string {
	n := 0
	for n < nameSize && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

// SetName stores name into the fixed-size Name field, NUL-terminated.
func (e *DirEntry) SetName(name string) {
	for i := range e.Name {
		e.Name[i] = 0
	}
	copy(e.Name[:nameSize-1], name)
}

// sentinel reports the name[0] sentinel byte of an empty/reusable slot.
func (e *DirEntry) sentinel() byte { return e.Name[0] }

// isLive reports whether the entry is a real, visible directory member.
// Both the cleaned and removed-but-not-cleaned sentinels count as not live.
func (e *DirEntry) isLive() bool {
	s := e.sentinel()
	return s != nameEOD && s != nameCleaned && s != nameRemoved
}

func (e *DirEntry) isReusableSlot() bool {
	s := e.sentinel()
	return s == nameEOD || s == nameCleaned || s == nameRemoved
}

func (e *DirEntry) isEOD() bool { return e.sentinel() == nameEOD }

// marshal encodes e into exactly EntrySize bytes, explicitly (not relying
// on Go struct layout/alignment) via field-by-field binary.LittleEndian
// encoding.
func (e *DirEntry) marshal() []byte {
	buf := make([]byte, EntrySize)
	copy(buf[0:32], e.Name[:])
	binary.LittleEndian.PutUint32(buf[32:36], e.Size)
	binary.LittleEndian.PutUint16(buf[36:38], e.FirstBlock)
	buf[38] = e.Type
	buf[39] = e.Perm
	binary.LittleEndian.PutUint64(buf[40:48], uint64(e.MTime))
	// buf[48:64] stays zero (padding).
	return buf
}

func unmarshalDirEntry(buf []byte) DirEntry {
	var e DirEntry
	copy(e.Name[:], buf[0:32])
	e.Size = binary.LittleEndian.Uint32(buf[32:36])
	e.FirstBlock = binary.LittleEndian.Uint16(buf[36:38])
	e.Type = buf[38]
	e.Perm = buf[39]
	e.MTime = int64(binary.LittleEndian.Uint64(buf[40:48]))
	return e
}

func now() int64 { return time.Now().Unix() }

// superblock is the 16-bit value at byte offset 0: (F<<8)|c.
type superblock struct {
	fatBlocks uint8 // F, in [1,32]
	sizeCfg   uint8 // c, in [0,4]
}

func (s superblock) blockSize() int { return 1 << (8 + uint(s.sizeCfg)) }

func (s superblock) fatBytes() int64 { return int64(s.fatBlocks) * int64(s.blockSize()) }

// numDataBlocks returns N, the maximum number of addressable data blocks.
func (s superblock) numDataBlocks() int {
	n := s.fatBytes()/2 - 1
	if n > 0xFFFE {
		n = 0xFFFE
	}
	return int(n)
}

func encodeSuperblock(fatBlocks, sizeCfg uint8) uint16 {
	return uint16(fatBlocks)<<8 | uint16(sizeCfg)
}

func decodeSuperblock(v uint16) superblock {
	return superblock{fatBlocks: uint8(v >> 8), sizeCfg: uint8(v & 0xFF)}
}
