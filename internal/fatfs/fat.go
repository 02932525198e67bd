package fatfs

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// fatTable is C2: the FAT allocator. It addresses entries directly through
// the blockStore's mmap'd region (entries live inside [0, fatBytes)).
type fatTable struct {
	store     *blockStore
	super     superblock
	numData   int // N
	blockSize int
}

func newFATTable(store *blockStore, super superblock) *fatTable {
	return &fatTable{
		store:     store,
		super:     super,
		numData:   super.numDataBlocks(),
		blockSize: super.blockSize(),
	}
}

func (t *fatTable) entryOffset(i uint16) int64 { return int64(i) * 2 }

func (t *fatTable) entry(i uint16) (uint16, error) {
	var buf [2]byte
	if err := t.store.readAt(t.entryOffset(i), buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (t *fatTable) setEntry(i uint16, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return t.store.writeAt(t.entryOffset(i), buf[:])
}

// dataBlockOffset returns the byte offset of data block i (i in [1,N]).
func (t *fatTable) dataBlockOffset(i uint16) int64 {
	return t.super.fatBytes() + int64(i-1)*int64(t.blockSize)
}

// zeroBlock clears a freshly allocated data block.
func (t *fatTable) zeroBlock(i uint16) error {
	return t.store.writeAt(t.dataBlockOffset(i), make([]byte, t.blockSize))
}

// allocate implements C2.allocate: scan entries 1..N for the first free
// (0x0000) slot, mark it as the new tail (0xFFFF), link prev->new if
// prev != 0, and zero the new block's contents.
func (t *fatTable) allocate(prev uint16) (uint16, error) {
	var found uint16
	ok := false
	for i := 1; i <= t.numData; i++ {
		v, err := t.entry(uint16(i))
		if err != nil {
			return 0, err
		}
		if v == fatFree {
			found = uint16(i)
			ok = true
			break
		}
	}
	if !ok {
		return 0, ErrNoSpace
	}
	if err := t.setEntry(found, fatEOC); err != nil {
		return 0, err
	}
	if prev != 0 {
		if err := t.setEntry(prev, found); err != nil {
			return 0, err
		}
	}
	if err := t.zeroBlock(found); err != nil {
		return 0, err
	}
	return found, nil
}

// freeChain implements C2.free_chain.
func (t *fatTable) freeChain(start uint16) error {
	cur := start
	for cur != fatEOC && cur != fatFree {
		next, err := t.entry(cur)
		if err != nil {
			return err
		}
		if err := t.setEntry(cur, fatFree); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// walkBlocks returns the chain's first block and the block index that
// holds logical block number logicalIdx (0-based) of the chain starting
// at first. If extend is true and the chain is shorter than logicalIdx+1
// blocks, new blocks are allocated to reach it; an empty chain gets a
// newly allocated first block, which is the first block returned.
func (t *fatTable) walkBlocks(first uint16, logicalIdx int, extend bool) (uint16, uint16, error) {
	if first == EmptyFirstBlock {
		if !extend {
			return 0, 0, ErrInvalidArg
		}
		nb, err := t.allocate(0)
		if err != nil {
			return 0, 0, err
		}
		first = nb
	}
	cur := first
	for i := 0; i < logicalIdx; i++ {
		next, err := t.entry(cur)
		if err != nil {
			return 0, 0, err
		}
		if next == fatEOC {
			if !extend {
				return first, cur, ErrInvalidArg
			}
			nb, err := t.allocate(cur)
			if err != nil {
				return first, cur, err
			}
			cur = nb
			continue
		}
		cur = next
	}
	return first, cur, nil
}

// readChain implements C2.read_chain: transfers up to len(buf) bytes
// starting at byte offset position in the chain rooted at first. Returns
// fewer bytes than requested (and a nil error) if end-of-chain is reached.
func (t *fatTable) readChain(first uint16, position int64, buf []byte) (int, error) {
	if first == EmptyFirstBlock {
		return 0, nil
	}
	blockIdx := int(position / int64(t.blockSize))
	inBlock := int(position % int64(t.blockSize))
	_, cur, err := t.walkBlocks(first, blockIdx, false)
	if err == ErrInvalidArg {
		return 0, nil // position past EOF
	} else if err != nil {
		return 0, err
	}
	total := 0
	for total < len(buf) {
		n := t.blockSize - inBlock
		if rem := len(buf) - total; n > rem {
			n = rem
		}
		if err := t.store.readAt(t.dataBlockOffset(cur)+int64(inBlock), buf[total:total+n]); err != nil {
			return total, err
		}
		total += n
		inBlock = 0
		next, err := t.entry(cur)
		if err != nil {
			return total, err
		}
		if next == fatEOC {
			break
		}
		cur = next
	}
	return total, nil
}

// writeChain implements C2.write_chain, extending the chain as needed.
// Returns the (possibly new) first block and the number of bytes written.
func (t *fatTable) writeChain(first uint16, position int64, buf []byte) (uint16, int, error) {
	blockIdx := int(position / int64(t.blockSize))
	inBlock := int(position % int64(t.blockSize))
	newFirst, cur, err := t.walkBlocks(first, blockIdx, true)
	if err != nil {
		return first, 0, err
	}
	total := 0
	for total < len(buf) {
		n := t.blockSize - inBlock
		if rem := len(buf) - total; n > rem {
			n = rem
		}
		if err := t.store.writeAt(t.dataBlockOffset(cur)+int64(inBlock), buf[total:total+n]); err != nil {
			return newFirst, total, err
		}
		total += n
		inBlock = 0
		if total == len(buf) {
			break
		}
		next, err := t.entry(cur)
		if err != nil {
			return newFirst, total, err
		}
		if next == fatEOC {
			nb, err := t.allocate(cur)
			if err != nil {
				return newFirst, total, err
			}
			cur = nb
		} else {
			cur = next
		}
	}
	return newFirst, total, nil
}

// snapshot returns a copy of every FAT entry, used by property tests to
// check allocate/free_chain round-trips entry-by-entry.
func (t *fatTable) snapshot() ([]uint16, error) {
	out := make([]uint16, t.numData+1)
	for i := range out {
		v, err := t.entry(uint16(i))
		if err != nil {
			return nil, xerrors.Errorf("snapshot entry %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
