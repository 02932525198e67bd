package fatfs

// LinkPolicy controls whether a name lookup that resolves to a symlink
// entry is followed.
type LinkPolicy int

const (
	// LinkNone never follows a link entry; the link itself is returned.
	LinkNone LinkPolicy = iota
	// LinkToLast follows a link, but if the chain bottoms out at a
	// missing target, the last existing link entry is returned instead
	// of a NOT_FOUND error.
	LinkToLast
	// LinkAll always follows links, propagating NOT_FOUND if the final
	// target is missing.
	LinkAll
)

const maxLinkDepth = 40

// position identifies a directory entry's on-disk slot, for remove/cleanup.
type position struct {
	block  uint16
	offset int64 // byte offset within the block
}

// rootEntry synthesizes the directory entry for "/", which has no entry
// of its own in any parent directory.
func rootEntry() DirEntry {
	e := DirEntry{
		FirstBlock: RootBlock,
		Type:       TypeDir,
		Perm:       PermExecute | PermRead | PermWrite,
	}
	e.SetName("/")
	return e
}

// forEachEntry walks every 64-byte slot of the directory chain rooted at
// block, calling fn(entry, pos) for each, including the terminating EOD
// slot. fn returns stop=true to halt early.
func (fs *FS) forEachEntry(block uint16, fn func(e DirEntry, pos position) (stop bool)) error {
	cur := block
	for {
		for off := int64(0); off+EntrySize <= int64(fs.fat.blockSize); off += EntrySize {
			buf := make([]byte, EntrySize)
			if err := fs.store.readAt(fs.fat.dataBlockOffset(cur)+off, buf); err != nil {
				return err
			}
			e := unmarshalDirEntry(buf)
			if fn(e, position{block: cur, offset: off}) {
				return nil
			}
			if e.isEOD() {
				return nil
			}
		}
		next, err := fs.fat.entry(cur)
		if err != nil {
			return err
		}
		if next == fatEOC {
			return nil // malformed: no EOD slot found; treat as end
		}
		cur = next
	}
}

func (fs *FS) readEntryAt(pos position) (DirEntry, error) {
	buf := make([]byte, EntrySize)
	if err := fs.store.readAt(fs.fat.dataBlockOffset(pos.block)+pos.offset, buf); err != nil {
		return DirEntry{}, err
	}
	return unmarshalDirEntry(buf), nil
}

func (fs *FS) writeEntryAt(pos position, e DirEntry) error {
	return fs.store.writeAt(fs.fat.dataBlockOffset(pos.block)+pos.offset, e.marshal())
}

// lookup implements the C3 "entry lookup within a directory" contract: an
// empty name returns the first reusable slot; otherwise the first live
// entry matching name, optionally following links per policy.
func (fs *FS) lookup(dirBlock uint16, name string, policy LinkPolicy) (DirEntry, position, error) {
	var (
		found    DirEntry
		foundPos position
		ok       bool
	)
	err := fs.forEachEntry(dirBlock, func(e DirEntry, pos position) bool {
		if name == "" {
			if e.isReusableSlot() {
				found, foundPos, ok = e, pos, true
				return true
			}
			return false
		}
		if e.isLive() && e.NameString() == name {
			found, foundPos, ok = e, pos, true
			return true
		}
		return false
	})
	if err != nil {
		return DirEntry{}, position{}, err
	}
	if !ok {
		return DirEntry{}, position{}, ErrNotFound
	}
	if name == "" || found.Type != TypeLink || policy == LinkNone {
		return found, foundPos, nil
	}
	return fs.followLink(found, foundPos, policy)
}

// followLink resolves a link entry's target, per the TO_LAST/ALL policies
// documented on LinkPolicy.
func (fs *FS) followLink(link DirEntry, linkPos position, policy LinkPolicy) (DirEntry, position, error) {
	cur, curPos := link, linkPos
	for depth := 0; depth < maxLinkDepth; depth++ {
		target, err := fs.readLinkTarget(cur)
		if err != nil {
			return DirEntry{}, position{}, err
		}
		tokens := normalize("/", target)
		entry, pos, _, err := fs.resolveTokens(tokens, LinkAll)
		if err == ErrNotFound {
			if policy == LinkToLast {
				return cur, curPos, nil
			}
			return DirEntry{}, position{}, ErrNotFound
		}
		if err != nil {
			return DirEntry{}, position{}, err
		}
		if entry.Type != TypeLink {
			return entry, pos, nil
		}
		cur, curPos = entry, pos
	}
	return DirEntry{}, position{}, ErrInvalidArg
}

func (fs *FS) readLinkTarget(link DirEntry) (string, error) {
	buf := make([]byte, link.Size)
	n, err := fs.fat.readChain(link.FirstBlock, 0, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// resolveTokens is C3's directory resolve: walks every token but the last
// as a directory requiring the execute bit, then looks up the final token
// with finalPolicy. Returns the terminal entry, its position, and the
// block of its containing directory.
func (fs *FS) resolveTokens(tokens []string, finalPolicy LinkPolicy) (DirEntry, position, uint16, error) {
	cur := uint16(RootBlock)
	if len(tokens) == 0 {
		return rootEntry(), position{}, 0, nil
	}
	for _, tok := range tokens[:len(tokens)-1] {
		e, _, err := fs.lookup(cur, tok, LinkAll)
		if err != nil {
			return DirEntry{}, position{}, 0, err
		}
		if e.Type != TypeDir {
			return DirEntry{}, position{}, 0, ErrNotDir
		}
		if e.Perm&PermExecute == 0 {
			return DirEntry{}, position{}, 0, ErrPermDenied
		}
		cur = e.FirstBlock
	}
	last := tokens[len(tokens)-1]
	entry, pos, err := fs.lookup(cur, last, finalPolicy)
	if err != nil {
		return DirEntry{}, position{}, cur, err
	}
	return entry, pos, cur, nil
}

// resolveParentDir walks all but the final component and returns the
// containing directory's block, requiring execute permission throughout.
func (fs *FS) resolveParentDir(tokens []string) (uint16, error) {
	cur := uint16(RootBlock)
	for _, tok := range tokens {
		e, _, err := fs.lookup(cur, tok, LinkAll)
		if err != nil {
			return 0, err
		}
		if e.Type != TypeDir {
			return 0, ErrNotDir
		}
		if e.Perm&PermExecute == 0 {
			return 0, ErrPermDenied
		}
		cur = e.FirstBlock
	}
	return cur, nil
}

// appendEntry implements C3's "append entry to directory block-chain".
func (fs *FS) appendEntry(dirBlock uint16, e DirEntry) (position, error) {
	_, pos, err := fs.lookup(dirBlock, "", LinkNone)
	if err != nil {
		return position{}, err
	}
	if err := fs.writeEntryAt(pos, e); err != nil {
		return position{}, err
	}
	// If that slot was the last in its block and the block was the
	// chain's last, allocate a fresh (zeroed, hence EOD-headed) block so
	// the EOD invariant holds.
	lastSlotInBlock := pos.offset+EntrySize == int64(fs.fat.blockSize)
	if lastSlotInBlock {
		next, err := fs.fat.entry(pos.block)
		if err != nil {
			return position{}, err
		}
		if next == fatEOC {
			if _, err := fs.fat.allocate(pos.block); err != nil {
				return position{}, err
			}
		}
	}
	return pos, nil
}

// removeEntry implements C3's remove: mark the slot "removed" (data still
// live) and return its position for later cleanup.
func (fs *FS) removeEntry(dirBlock uint16, name string) (position, error) {
	_, pos, err := fs.lookup(dirBlock, name, LinkNone)
	if err != nil {
		return position{}, err
	}
	e, err := fs.readEntryAt(pos)
	if err != nil {
		return position{}, err
	}
	e.Name[0] = nameRemoved
	if err := fs.writeEntryAt(pos, e); err != nil {
		return position{}, err
	}
	return pos, nil
}

// cleanup implements C3's cleanup(position): marks the slot byte as fully
// reclaimed once the caller has freed the underlying chain.
func (fs *FS) cleanup(pos position) error {
	e, err := fs.readEntryAt(pos)
	if err != nil {
		return err
	}
	e.Name[0] = nameCleaned
	return fs.writeEntryAt(pos, e)
}

// countLive returns 64 * the number of live entries in the directory chain
// rooted at block, matching the size field a correctly maintained
// directory entry should carry.
func (fs *FS) countLive(block uint16) (uint32, error) {
	var n uint32
	err := fs.forEachEntry(block, func(e DirEntry, _ position) bool {
		if e.isLive() {
			n++
		}
		return false
	})
	return n * EntrySize, err
}
