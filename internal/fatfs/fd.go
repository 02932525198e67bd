package fatfs

// OpenMode selects how Open positions the descriptor and what operations
// it permits.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeAppend
)

// fdEntry is one live open-file record: a name, mode, and cursor.
type fdEntry struct {
	name string
	mode OpenMode
	pos  int64
}

// FDTable is C5: a per-process table of open file descriptors. Integers
// below 3 are reserved and pass through to the host's stdin/stdout/stderr
// rather than routing through the filesystem; callers of Read/Write on fd
// 0/1/2 should bypass this table entirely.
type FDTable struct {
	fs      *FS
	cwd     string
	entries map[int]*fdEntry
}

// NewFDTable returns an empty table bound to fs, resolving relative paths
// against cwd.
func NewFDTable(fs *FS, cwd string) *FDTable {
	return &FDTable{fs: fs, cwd: cwd, entries: make(map[int]*fdEntry)}
}

// Cwd returns the table's current working directory.
func (t *FDTable) Cwd() string { return t.cwd }

// Chdir changes the working directory future relative lookups resolve
// against. The caller is responsible for having already validated path
// names a directory.
func (t *FDTable) Chdir(path string) { t.cwd = path }

// FS returns the mounted filesystem this table's descriptors resolve
// against, for callers (like a directory listing built-in) that need
// filesystem operations the table itself doesn't wrap.
func (t *FDTable) FS() *FS { return t.fs }

// nextFD returns the smallest unused integer >= 3.
func (t *FDTable) nextFD() int {
	for fd := 3; ; fd++ {
		if _, used := t.entries[fd]; !used {
			return fd
		}
	}
}

// Open implements C5's open(name, mode): WRITE truncates an existing file
// (creating it if absent), APPEND seeks to end-of-file (creating it if
// absent), and READ fails with NOT_FOUND if the file doesn't exist.
func (t *FDTable) Open(name string, mode OpenMode) (int, error) {
	meta, err := t.fs.GetMeta(t.cwd, name, true)
	switch {
	case err == ErrNotFound:
		if mode == ModeRead {
			return -1, ErrNotFound
		}
		if cerr := t.fs.Create(t.cwd, name, TypeRegular); cerr != nil {
			return -1, cerr
		}
		meta, err = t.fs.GetMeta(t.cwd, name, true)
		if err != nil {
			return -1, err
		}
	case err != nil:
		return -1, err
	}
	if meta.Type == TypeDir {
		return -1, ErrIsDir
	}

	var pos int64
	switch mode {
	case ModeWrite:
		if err := t.fs.Truncate(t.cwd, name, true); err != nil {
			return -1, err
		}
	case ModeAppend:
		pos = int64(meta.Size)
	}

	fd := t.nextFD()
	t.entries[fd] = &fdEntry{name: name, mode: mode, pos: pos}
	return fd, nil
}

// Close removes fd from the table. Closing an unknown or reserved fd is
// reported as an invalid argument.
func (t *FDTable) Close(fd int) error {
	if fd < 3 {
		return ErrInvalidArg
	}
	if _, ok := t.entries[fd]; !ok {
		return ErrInvalidArg
	}
	delete(t.entries, fd)
	return nil
}

// Read reads up to n bytes from fd starting at its current position,
// advancing the position by the number of bytes actually read.
func (t *FDTable) Read(fd int, n int) ([]byte, error) {
	e, err := t.lookup(fd)
	if err != nil {
		return nil, err
	}
	if e.mode != ModeRead {
		return nil, ErrPermDenied
	}
	buf, err := t.fs.Read(t.cwd, e.name, e.pos, n)
	if err != nil {
		return nil, err
	}
	e.pos += int64(len(buf))
	return buf, nil
}

// Write writes data at fd's current position and advances it.
func (t *FDTable) Write(fd int, data []byte) (int, error) {
	e, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	if e.mode == ModeRead {
		return 0, ErrPermDenied
	}
	if err := t.fs.Write(t.cwd, e.name, e.pos, data, true); err != nil {
		return 0, err
	}
	e.pos += int64(len(data))
	return len(data), nil
}

// Lseek repositions fd's cursor to an absolute offset.
func (t *FDTable) Lseek(fd int, offset int64) error {
	e, err := t.lookup(fd)
	if err != nil {
		return err
	}
	if offset < 0 {
		return ErrInvalidArg
	}
	e.pos = offset
	return nil
}

// CloseAll releases every descriptor held by the table, used when a
// process exits without closing its own files.
func (t *FDTable) CloseAll() {
	for fd := range t.entries {
		delete(t.entries, fd)
	}
}

func (t *FDTable) lookup(fd int) (*fdEntry, error) {
	if fd < 3 {
		return nil, ErrInvalidArg
	}
	e, ok := t.entries[fd]
	if !ok {
		return nil, ErrInvalidArg
	}
	return e, nil
}
