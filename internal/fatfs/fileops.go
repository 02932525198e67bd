package fatfs

// resolveDir resolves dirPath to its own directory entry, its position
// within its parent (zero value for root, which has none), and the block
// of its own first data block (where its children live).
func (fs *FS) resolveDir(cwd, dirPath string) (DirEntry, position, error) {
	tokens := normalize(cwd, dirPath)
	entry, pos, _, err := fs.resolveTokens(tokens, LinkAll)
	if err != nil {
		return DirEntry{}, position{}, err
	}
	if entry.Type != TypeDir {
		return DirEntry{}, position{}, ErrNotDir
	}
	return entry, pos, nil
}

// adjustDirSize updates a directory's own size/mtime fields by delta*64
// bytes. A zero position (root) is a no-op: root has no entry of its own.
func (fs *FS) adjustDirSize(pos position, delta int32) error {
	if pos == (position{}) {
		return nil
	}
	e, err := fs.readEntryAt(pos)
	if err != nil {
		return err
	}
	e.Size = uint32(int32(e.Size) + delta*EntrySize)
	e.MTime = now()
	return fs.writeEntryAt(pos, e)
}

// Create implements C4's create(path, type): the parent must exist, be a
// directory, and be writable. An existing non-link target fails EXISTS; an
// existing link that resolves to a missing target is created as that
// target instead.
func (fs *FS) Create(cwd, path string, typ uint8) error {
	tokens := normalize(cwd, path)
	if len(tokens) == 0 {
		return ErrInvalidArg
	}
	parent, parentPos, err := fs.resolveDir(cwd, joinAbs(tokens[:len(tokens)-1]))
	if err != nil {
		return err
	}
	if parent.Perm&PermWrite == 0 {
		return ErrPermDenied
	}
	parentBlock, leaf := parent.FirstBlock, tokens[len(tokens)-1]

	if existing, _, lerr := fs.lookup(parentBlock, leaf, LinkNone); lerr == nil {
		if existing.Type != TypeLink {
			return ErrExists
		}
		if _, _, ferr := fs.lookup(parentBlock, leaf, LinkAll); ferr == nil {
			return ErrExists
		} else if ferr != ErrNotFound {
			return ferr
		}
		// The link's target doesn't exist: materialize it there instead.
		linkTarget, rerr := fs.readLinkTarget(existing)
		if rerr != nil {
			return rerr
		}
		targetTokens := normalize(cwd, linkTarget)
		if len(targetTokens) == 0 {
			return ErrInvalidArg
		}
		tParent, tParentPos, terr := fs.resolveDir(cwd, joinAbs(targetTokens[:len(targetTokens)-1]))
		if terr != nil {
			return terr
		}
		parentBlock, parentPos, leaf = tParent.FirstBlock, tParentPos, targetTokens[len(targetTokens)-1]
	} else if lerr != ErrNotFound {
		return lerr
	}

	e := DirEntry{Type: typ, Perm: PermRead | PermWrite | PermExecute, FirstBlock: EmptyFirstBlock, MTime: now()}
	e.SetName(leaf)
	pos, err := fs.appendEntry(parentBlock, e)
	if err != nil {
		return err
	}
	if typ == TypeDir {
		// Directories immediately get a data block to host their EOD slot.
		blk, err := fs.fat.allocate(0)
		if err != nil {
			return err
		}
		e.FirstBlock = blk
		if err := fs.writeEntryAt(pos, e); err != nil {
			return err
		}
	}
	return fs.adjustDirSize(parentPos, 1)
}

// Read implements C4's read(path, offset, buf, n).
func (fs *FS) Read(cwd, path string, offset int64, n int) ([]byte, error) {
	entry, _, _, err := fs.resolveTokens(normalize(cwd, path), LinkAll)
	if err != nil {
		return nil, err
	}
	if entry.Type == TypeDir {
		return nil, ErrIsDir
	}
	if entry.Perm&PermRead == 0 {
		return nil, ErrPermDenied
	}
	if offset >= int64(entry.Size) {
		return []byte{}, nil
	}
	if rem := int64(entry.Size) - offset; int64(n) > rem {
		n = int(rem)
	}
	buf := make([]byte, n)
	read, err := fs.fat.readChain(entry.FirstBlock, offset, buf)
	if err != nil {
		return nil, err
	}
	return buf[:read], nil
}

// Write implements C4's write(path, offset, bytes, follow_links).
func (fs *FS) Write(cwd, path string, offset int64, data []byte, follow bool) error {
	policy := LinkAll
	if !follow {
		policy = LinkNone
	}
	tokens := normalize(cwd, path)
	if len(tokens) == 0 {
		return ErrIsDir
	}
	entry, pos, _, err := fs.resolveTokens(tokens, policy)
	if err != nil {
		return err
	}
	if entry.Type == TypeDir {
		return ErrIsDir
	}
	if entry.Perm&PermWrite == 0 {
		return ErrPermDenied
	}
	newFirst, n, err := fs.fat.writeChain(entry.FirstBlock, offset, data)
	if err != nil {
		return err
	}
	entry.FirstBlock = newFirst
	if end := uint32(offset) + uint32(n); end > entry.Size {
		entry.Size = end
	}
	entry.MTime = now()
	return fs.writeEntryAt(pos, entry)
}

// Truncate implements C4's truncate(path, follow_links).
func (fs *FS) Truncate(cwd, path string, follow bool) error {
	policy := LinkAll
	if !follow {
		policy = LinkNone
	}
	entry, pos, _, err := fs.resolveTokens(normalize(cwd, path), policy)
	if err != nil {
		return err
	}
	if entry.Type == TypeDir {
		if entry.Size > 0 {
			return ErrNotEmpty
		}
		return nil
	}
	if entry.FirstBlock != EmptyFirstBlock {
		if err := fs.fat.freeChain(entry.FirstBlock); err != nil {
			return err
		}
	}
	entry.FirstBlock = EmptyFirstBlock
	entry.Size = 0
	entry.MTime = now()
	return fs.writeEntryAt(pos, entry)
}

// Remove implements C4's remove(path).
func (fs *FS) Remove(cwd, path string) error {
	tokens := normalize(cwd, path)
	if len(tokens) == 0 {
		return ErrInvalidArg
	}
	parent, parentPos, err := fs.resolveDir(cwd, joinAbs(tokens[:len(tokens)-1]))
	if err != nil {
		return err
	}
	leaf := tokens[len(tokens)-1]
	entry, _, lerr := fs.lookup(parent.FirstBlock, leaf, LinkNone)
	if lerr != nil {
		return lerr
	}
	pos, err := fs.removeEntry(parent.FirstBlock, leaf)
	if err != nil {
		return err
	}
	if entry.FirstBlock != EmptyFirstBlock {
		if err := fs.fat.freeChain(entry.FirstBlock); err != nil {
			return err
		}
	}
	if err := fs.cleanup(pos); err != nil {
		return err
	}
	return fs.adjustDirSize(parentPos, -1)
}

// GetMeta implements C4's get_meta(path, follow_links).
func (fs *FS) GetMeta(cwd, path string, follow bool) (DirEntry, error) {
	policy := LinkAll
	if !follow {
		policy = LinkNone
	}
	entry, _, _, err := fs.resolveTokens(normalize(cwd, path), policy)
	return entry, err
}

// SetMeta implements C4's set_meta(path, entry, follow_links); used by
// chmod and rename. The caller is trusted to preserve the entry's Name.
func (fs *FS) SetMeta(cwd, path string, e DirEntry, follow bool) error {
	policy := LinkAll
	if !follow {
		policy = LinkNone
	}
	_, pos, _, err := fs.resolveTokens(normalize(cwd, path), policy)
	if err != nil {
		return err
	}
	return fs.writeEntryAt(pos, e)
}

// List implements C4's list(path): the live entries of a directory, in
// enumeration order.
func (fs *FS) List(cwd, path string) ([]DirEntry, error) {
	entry, _, _, err := fs.resolveTokens(normalize(cwd, path), LinkAll)
	if err != nil {
		return nil, err
	}
	if entry.Type != TypeDir {
		return nil, ErrNotDir
	}
	if entry.Perm&PermRead == 0 {
		return nil, ErrPermDenied
	}
	var out []DirEntry
	err = fs.forEachEntry(entry.FirstBlock, func(e DirEntry, _ position) bool {
		if e.isLive() {
			out = append(out, e)
		}
		return false
	})
	return out, err
}

// CreateLink writes a symlink entry at path whose content is target.
func (fs *FS) CreateLink(cwd, path, target string) error {
	tokens := normalize(cwd, path)
	if len(tokens) == 0 {
		return ErrInvalidArg
	}
	parent, parentPos, err := fs.resolveDir(cwd, joinAbs(tokens[:len(tokens)-1]))
	if err != nil {
		return err
	}
	leaf := tokens[len(tokens)-1]
	if _, _, lerr := fs.lookup(parent.FirstBlock, leaf, LinkNone); lerr == nil {
		return ErrExists
	} else if lerr != ErrNotFound {
		return lerr
	}
	e := DirEntry{Type: TypeLink, Perm: PermRead | PermWrite | PermExecute, FirstBlock: EmptyFirstBlock, MTime: now()}
	e.SetName(leaf)
	pos, err := fs.appendEntry(parent.FirstBlock, e)
	if err != nil {
		return err
	}
	newFirst, n, err := fs.fat.writeChain(EmptyFirstBlock, 0, []byte(target))
	if err != nil {
		return err
	}
	e.FirstBlock = newFirst
	e.Size = uint32(n)
	if err := fs.writeEntryAt(pos, e); err != nil {
		return err
	}
	return fs.adjustDirSize(parentPos, 1)
}

// Rename implements C4's rename/move policy: if the destination exists and
// is a directory, the source is moved into it under its own base name;
// otherwise the destination (if any) is replaced outright.
func (fs *FS) Rename(cwd, src, dst string) error {
	srcTokens := normalize(cwd, src)
	if len(srcTokens) == 0 {
		return ErrInvalidArg
	}
	srcParent, srcParentPos, err := fs.resolveDir(cwd, joinAbs(srcTokens[:len(srcTokens)-1]))
	if err != nil {
		return err
	}
	srcLeaf := srcTokens[len(srcTokens)-1]
	srcEntry, _, err := fs.lookup(srcParent.FirstBlock, srcLeaf, LinkNone)
	if err != nil {
		return err
	}

	dstTokens := normalize(cwd, dst)
	if len(dstTokens) == 0 {
		return ErrInvalidArg
	}
	dstEntry, dstEntryPos, dstParentBlock, derr := fs.resolveTokens(dstTokens, LinkNone)

	var targetBlock uint16
	var targetPos position // position of the directory that will own the moved entry, within ITS parent
	var targetName string

	switch {
	case derr == nil && dstEntry.Type == TypeDir:
		targetBlock, targetPos, targetName = dstEntry.FirstBlock, dstEntryPos, srcLeaf
		if _, _, err := fs.lookup(targetBlock, targetName, LinkNone); err == nil {
			return ErrExists
		} else if err != ErrNotFound {
			return err
		}
	case derr == nil:
		if srcEntry.Type == TypeDir {
			return ErrIsDir
		}
		_, dstParentPos, err := fs.resolveDir(cwd, joinAbs(dstTokens[:len(dstTokens)-1]))
		if err != nil {
			return err
		}
		targetBlock, targetPos, targetName = dstParentBlock, dstParentPos, dstTokens[len(dstTokens)-1]
		pos, err := fs.removeEntry(targetBlock, targetName)
		if err != nil {
			return err
		}
		if dstEntry.FirstBlock != EmptyFirstBlock {
			if err := fs.fat.freeChain(dstEntry.FirstBlock); err != nil {
				return err
			}
		}
		if err := fs.cleanup(pos); err != nil {
			return err
		}
		if err := fs.adjustDirSize(targetPos, -1); err != nil {
			return err
		}
	case derr == ErrNotFound:
		dstParent, dstParentPos, err := fs.resolveDir(cwd, joinAbs(dstTokens[:len(dstTokens)-1]))
		if err != nil {
			return err
		}
		targetBlock, targetPos, targetName = dstParent.FirstBlock, dstParentPos, dstTokens[len(dstTokens)-1]
	default:
		return derr
	}

	moved := srcEntry
	moved.SetName(targetName)
	moved.MTime = now()
	if _, err := fs.appendEntry(targetBlock, moved); err != nil {
		return err
	}
	srcPos, err := fs.removeEntry(srcParent.FirstBlock, srcLeaf)
	if err != nil {
		return err
	}
	if err := fs.cleanup(srcPos); err != nil {
		return err
	}
	if err := fs.adjustDirSize(srcParentPos, -1); err != nil {
		return err
	}
	return fs.adjustDirSize(targetPos, 1)
}
