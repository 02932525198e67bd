// Package fatfs implements a FAT-style filesystem image: a block store
// mmap'd from a single backing file, a FAT allocator, a directory engine
// with symlink resolution, and the file operations
// (create/read/write/truncate/remove/list/chmod/rename) that preserve the
// on-disk invariants.
package fatfs

import (
	"sync"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// FS is the mounted filesystem: the single moving part every file
// operation in this package hangs off of.
type FS struct {
	store *blockStore
	fat   *fatTable
	super superblock
	path  string
}

var mountRegistry struct {
	sync.Mutex
	active map[[2]uint64]bool
}

func init() { mountRegistry.active = make(map[[2]uint64]bool) }

// Mkfs creates a new backing file at path with F FAT blocks of size
// 2^(8+c) bytes, formats the superblock, FAT and an empty root directory,
// and writes it atomically.
func Mkfs(path string, fatBlocks, sizeCfg int) error {
	if fatBlocks < 1 || fatBlocks > 32 || sizeCfg < 0 || sizeCfg > 4 {
		return ErrInvalidArg
	}
	super := superblock{fatBlocks: uint8(fatBlocks), sizeCfg: uint8(sizeCfg)}
	blockSize := super.blockSize()
	fatBytes := super.fatBytes()
	numEntries := fatBytes / 2

	image := make([]byte, fatBytes+int64(blockSize)) // FAT region + root dir's one block
	// Superblock occupies FAT entry 0.
	entries := make([]uint16, numEntries)
	entries[0] = encodeSuperblock(uint8(fatBlocks), uint8(sizeCfg))
	entries[RootBlock] = fatEOC
	for i, v := range entries {
		image[i*2] = byte(v)
		image[i*2+1] = byte(v >> 8)
	}
	// Root directory's first (only) block is already all-zero, so its
	// first 64-byte slot is a valid EOD marker.
	if err := renameio.WriteFile(path, image, 0644); err != nil {
		return xerrors.Errorf("writing filesystem image: %w", err)
	}
	return nil
}

// Mount implements C1/C4's mount: it opens path, mmaps its FAT region, and
// rejects mounting a backing file that is already mounted in this process.
func Mount(path string) (*FS, error) {
	dev, ino, err := deviceIdentity(path)
	if err != nil {
		return nil, err
	}
	key := [2]uint64{dev, ino}

	mountRegistry.Lock()
	if mountRegistry.active[key] {
		mountRegistry.Unlock()
		return nil, ErrBusy
	}
	mountRegistry.active[key] = true
	mountRegistry.Unlock()

	sbBuf, err := openSuperblock(path)
	if err != nil {
		mountRegistry.Lock()
		delete(mountRegistry.active, key)
		mountRegistry.Unlock()
		return nil, err
	}
	super := decodeSuperblock(uint16(sbBuf[0]) | uint16(sbBuf[1])<<8)

	store, err := openBlockStore(path, super.fatBytes())
	if err != nil {
		mountRegistry.Lock()
		delete(mountRegistry.active, key)
		mountRegistry.Unlock()
		return nil, err
	}
	return &FS{
		store: store,
		fat:   newFATTable(store, super),
		super: super,
		path:  path,
	}, nil
}

// openSuperblock reads the raw 2-byte superblock value without requiring
// the rest of the allocator to exist yet.
func openSuperblock(path string) ([]byte, error) {
	store, err := openRawHeader(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	buf := make([]byte, 2)
	if _, err := store.ReadAt(buf, 0); err != nil {
		return nil, xerrors.Errorf("reading superblock: %w", err)
	}
	return buf, nil
}

// Unmount releases the mapping and unregisters the backing file so it can
// be mounted again.
func (fs *FS) Unmount() error {
	mountRegistry.Lock()
	delete(mountRegistry.active, [2]uint64{fs.store.dev, fs.store.ino})
	mountRegistry.Unlock()
	return fs.store.close()
}

// BlockSize returns the configured data block size in bytes.
func (fs *FS) BlockSize() int { return fs.fat.blockSize }
