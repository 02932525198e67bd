package fatfs

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// blockStore is C1: it mmaps the superblock+FAT region of the backing file
// and services the data region, which is large and sparsely touched, via
// ordinary pread/pwrite instead of growing the mapping.
type blockStore struct {
	mu sync.Mutex

	f        *os.File
	mm       mmap.MMap // covers bytes [0, fatBytes)
	fatBytes int64

	dev, ino uint64 // identity of the backing file, for the BUSY check
}

// deviceIdentity returns the (device, inode) pair that identifies the file
// a path resolves to, used to reject mounting the same backing file twice.
func deviceIdentity(path string) (dev, ino uint64, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, xerrors.Errorf("stat %s: %w", path, err)
	}
	return uint64(st.Dev), uint64(st.Ino), nil
}

// openRawHeader opens path for a one-off read of the superblock, before
// the mapping's extent (which depends on the superblock) is known.
func openRawHeader(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func openBlockStore(path string, fatBytes int64) (*blockStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	dev, ino, err := deviceIdentity(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	mm, err := mmap.MapRegion(f, int(fatBytes), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("mmap %s: %w", path, err)
	}
	return &blockStore{f: f, mm: mm, fatBytes: fatBytes, dev: dev, ino: ino}, nil
}

func (b *blockStore) sameFile(path string) bool {
	dev, ino, err := deviceIdentity(path)
	if err != nil {
		return false
	}
	return dev == b.dev && ino == b.ino
}

// readAt reads len(p) bytes starting at byte offset off, transparently
// spanning the mmap'd FAT region and the file-backed data region.
func (b *blockStore) readAt(off int64, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(p))
	if off+n <= b.fatBytes {
		copy(p, b.mm[off:off+n])
		return nil
	}
	if off >= b.fatBytes {
		_, err := b.f.ReadAt(p, off)
		return err
	}
	head := b.fatBytes - off
	copy(p[:head], b.mm[off:b.fatBytes])
	_, err := b.f.ReadAt(p[head:], b.fatBytes)
	return err
}

// writeAt writes p at byte offset off and performs a durable sync of the
// backing file before returning.
func (b *blockStore) writeAt(off int64, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(p))
	switch {
	case off+n <= b.fatBytes:
		copy(b.mm[off:off+n], p)
	case off >= b.fatBytes:
		if _, err := b.f.WriteAt(p, off); err != nil {
			return err
		}
	default:
		head := b.fatBytes - off
		copy(b.mm[off:b.fatBytes], p[:head])
		if _, err := b.f.WriteAt(p[head:], b.fatBytes); err != nil {
			return err
		}
	}
	return b.sync()
}

// sync flushes the mmap'd region and fsyncs the file descriptor. Called
// with mu held.
func (b *blockStore) sync() error {
	if err := b.mm.Flush(); err != nil {
		return xerrors.Errorf("flush mmap: %w", err)
	}
	if err := unix.Fsync(int(b.f.Fd())); err != nil {
		return xerrors.Errorf("fsync: %w", err)
	}
	return nil
}

func (b *blockStore) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	merr := b.mm.Unmap()
	cerr := b.f.Close()
	if merr != nil {
		return merr
	}
	return cerr
}
