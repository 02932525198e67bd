package fatfs

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func mustMkfs(t *testing.T, fatBlocks, sizeCfg int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.fs")
	if err := Mkfs(path, fatBlocks, sizeCfg); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return path
}

func mustMount(t *testing.T, path string) *FS {
	t.Helper()
	fs, err := Mount(path)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestMountRejectsDoubleMount(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)
	if _, err := Mount(path); err != ErrBusy {
		t.Fatalf("second Mount: got %v, want ErrBusy", err)
	}
	fs.Unmount()
	fs2, err := Mount(path)
	if err != nil {
		t.Fatalf("remount after unmount: %v", err)
	}
	fs2.Unmount()
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "hello.txt", TypeRegular); err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("the quick brown fox jumps over the lazy dog")
	if err := fs.Write("/", "hello.txt", 0, payload, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read("/", "hello.txt", 0, len(payload)+16)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Read round trip: got %q, want %q", got, payload)
	}
}

func TestCreateWriteReadSurvivesRemount(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	payload := []byte("persisted across unmount")
	func() {
		fs := mustMount(t, path)
		if err := fs.Create("/", "persist.txt", TypeRegular); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := fs.Write("/", "persist.txt", 0, payload, true); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}()

	fs := mustMount(t, path)
	got, err := fs.Read("/", "persist.txt", 0, len(payload))
	if err != nil {
		t.Fatalf("Read after remount: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("remount round trip: got %q, want %q", got, payload)
	}
}

func TestRemoveFreesFATChain(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	before, err := fs.fat.snapshot()
	if err != nil {
		t.Fatalf("snapshot before: %v", err)
	}

	if err := fs.Create("/", "big.bin", TypeRegular); err != nil {
		t.Fatalf("Create: %v", err)
	}
	data := bytes.Repeat([]byte{0xAB}, fs.BlockSize()*3)
	if err := fs.Write("/", "big.bin", 0, data, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Remove("/", "big.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	after, err := fs.fat.snapshot()
	if err != nil {
		t.Fatalf("snapshot after: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("FAT entries not restored after create+write+remove (-before +after):\n%s", diff)
	}

	if _, err := fs.GetMeta("/", "big.bin", true); err != ErrNotFound {
		t.Fatalf("GetMeta after remove: got %v, want ErrNotFound", err)
	}
}

func TestDirectorySizeTracksLiveEntries(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "sub", TypeDir); err != nil {
		t.Fatalf("Create dir: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := fs.Create("/sub", name, TypeRegular); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	meta, err := fs.GetMeta("/", "sub", true)
	if err != nil {
		t.Fatalf("GetMeta sub: %v", err)
	}
	if meta.Size != 3*EntrySize {
		t.Fatalf("dir size after 3 creates: got %d, want %d", meta.Size, 3*EntrySize)
	}

	if err := fs.Remove("/sub", "b"); err != nil {
		t.Fatalf("Remove b: %v", err)
	}
	meta, err = fs.GetMeta("/", "sub", true)
	if err != nil {
		t.Fatalf("GetMeta sub after remove: %v", err)
	}
	if meta.Size != 2*EntrySize {
		t.Fatalf("dir size after remove: got %d, want %d", meta.Size, 2*EntrySize)
	}

	entries, err := fs.List("/", "sub")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List length: got %d, want 2", len(entries))
	}
}

func TestTruncateFreesChainAndZeroesSize(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "f", TypeRegular); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.Write("/", "f", 0, bytes.Repeat([]byte{1}, fs.BlockSize()*2), true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Truncate("/", "f", true); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	meta, err := fs.GetMeta("/", "f", true)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if meta.Size != 0 || meta.FirstBlock != EmptyFirstBlock {
		t.Fatalf("Truncate did not reset entry: %+v", meta)
	}
}

func TestSymlinkResolution(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "target.txt", TypeRegular); err != nil {
		t.Fatalf("Create target: %v", err)
	}
	if err := fs.Write("/", "target.txt", 0, []byte("via link"), true); err != nil {
		t.Fatalf("Write target: %v", err)
	}
	if err := fs.CreateLink("/", "link.txt", "/target.txt"); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	got, err := fs.Read("/", "link.txt", 0, 32)
	if err != nil {
		t.Fatalf("Read through link: %v", err)
	}
	if !bytes.Equal(got, []byte("via link")) {
		t.Fatalf("Read through link: got %q", got)
	}

	meta, err := fs.GetMeta("/", "link.txt", false)
	if err != nil {
		t.Fatalf("GetMeta no-follow: %v", err)
	}
	if meta.Type != TypeLink {
		t.Fatalf("GetMeta no-follow: got type %d, want TypeLink", meta.Type)
	}
}

func TestRenameMovesEntryAndUpdatesDirSizes(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "src.txt", TypeRegular); err != nil {
		t.Fatalf("Create src: %v", err)
	}
	if err := fs.Create("/", "destdir", TypeDir); err != nil {
		t.Fatalf("Create destdir: %v", err)
	}
	if err := fs.Rename("/", "src.txt", "destdir"); err != nil {
		t.Fatalf("Rename into dir: %v", err)
	}
	if _, err := fs.GetMeta("/", "src.txt", true); err != ErrNotFound {
		t.Fatalf("src.txt still present after rename: %v", err)
	}
	if _, err := fs.GetMeta("/destdir", "src.txt", true); err != nil {
		t.Fatalf("src.txt not found under destdir: %v", err)
	}
	destMeta, err := fs.GetMeta("/", "destdir", true)
	if err != nil {
		t.Fatalf("GetMeta destdir: %v", err)
	}
	if destMeta.Size != EntrySize {
		t.Fatalf("destdir size after rename-in: got %d, want %d", destMeta.Size, EntrySize)
	}
}

func TestRenameOverExistingFileKeepsDirSizeConsistent(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "d", TypeDir); err != nil {
		t.Fatalf("Create d: %v", err)
	}
	if err := fs.Create("/d", "src.txt", TypeRegular); err != nil {
		t.Fatalf("Create src: %v", err)
	}
	if err := fs.Write("/d", "src.txt", 0, []byte("new"), true); err != nil {
		t.Fatalf("Write src: %v", err)
	}
	if err := fs.Create("/d", "dst.txt", TypeRegular); err != nil {
		t.Fatalf("Create dst: %v", err)
	}
	if err := fs.Write("/d", "dst.txt", 0, []byte("old content"), true); err != nil {
		t.Fatalf("Write dst: %v", err)
	}

	if err := fs.Rename("/d", "src.txt", "dst.txt"); err != nil {
		t.Fatalf("Rename over existing file: %v", err)
	}

	dMeta, err := fs.GetMeta("/", "d", true)
	if err != nil {
		t.Fatalf("GetMeta d: %v", err)
	}
	entries, err := fs.List("/", "d")
	if err != nil {
		t.Fatalf("List d: %v", err)
	}
	if uint32(len(entries))*EntrySize != dMeta.Size {
		t.Fatalf("dir size after rename-over-existing = %d, want %d for %d live entries", dMeta.Size, uint32(len(entries))*EntrySize, len(entries))
	}
	if dMeta.Size != EntrySize {
		t.Fatalf("dir size after rename-over-existing = %d, want %d (one surviving entry)", dMeta.Size, EntrySize)
	}

	got, err := fs.Read("/d", "dst.txt", 0, 32)
	if err != nil {
		t.Fatalf("Read dst.txt: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("dst.txt content = %q, want %q", got, "new")
	}
	if _, err := fs.GetMeta("/d", "src.txt", true); err != ErrNotFound {
		t.Fatalf("src.txt after rename: got %v, want ErrNotFound", err)
	}
}

func TestFsckCleanFilesystemReportsNoProblems(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "sub", TypeDir); err != nil {
		t.Fatalf("Create sub: %v", err)
	}
	if err := fs.Create("/sub", "f.txt", TypeRegular); err != nil {
		t.Fatalf("Create f.txt: %v", err)
	}
	if err := fs.Write("/sub", "f.txt", 0, bytes.Repeat([]byte{1}, fs.BlockSize()*2), true); err != nil {
		t.Fatalf("Write f.txt: %v", err)
	}
	if err := fs.CreateLink("/", "l", "/sub/f.txt"); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	problems, err := fs.Fsck()
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("Fsck on a clean filesystem reported problems: %v", problems)
	}
}

func TestFsckDetectsDirSizeMismatch(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)

	if err := fs.Create("/", "sub", TypeDir); err != nil {
		t.Fatalf("Create sub: %v", err)
	}
	if err := fs.Create("/sub", "a", TypeRegular); err != nil {
		t.Fatalf("Create a: %v", err)
	}

	subEntry, subPos, err := fs.resolveDir("/", "/sub")
	if err != nil {
		t.Fatalf("resolveDir sub: %v", err)
	}
	subEntry.Size += EntrySize // corrupt it: no entry actually added
	if err := fs.writeEntryAt(subPos, subEntry); err != nil {
		t.Fatalf("writeEntryAt: %v", err)
	}

	problems, err := fs.Fsck()
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if len(problems) != 1 {
		t.Fatalf("Fsck problems = %v, want exactly 1 dir-size mismatch", problems)
	}
}

func TestFDTableReadWriteAppend(t *testing.T) {
	path := mustMkfs(t, 2, 0)
	fs := mustMount(t, path)
	fds := NewFDTable(fs, "/")

	wfd, err := fds.Open("note.txt", ModeWrite)
	if err != nil {
		t.Fatalf("Open WRITE: %v", err)
	}
	if wfd < 3 {
		t.Fatalf("Open returned reserved fd %d", wfd)
	}
	if _, err := fds.Write(wfd, []byte("first ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fds.Close(wfd); err != nil {
		t.Fatalf("Close: %v", err)
	}

	afd, err := fds.Open("note.txt", ModeAppend)
	if err != nil {
		t.Fatalf("Open APPEND: %v", err)
	}
	if _, err := fds.Write(afd, []byte("second")); err != nil {
		t.Fatalf("Write append: %v", err)
	}
	fds.Close(afd)

	rfd, err := fds.Open("note.txt", ModeRead)
	if err != nil {
		t.Fatalf("Open READ: %v", err)
	}
	got, err := fds.Read(rfd, 64)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("first second")) {
		t.Fatalf("FD read/write/append round trip: got %q", got)
	}
	fds.Close(rfd)

	if _, err := fds.Open("missing.txt", ModeRead); err != ErrNotFound {
		t.Fatalf("Open READ on missing file: got %v, want ErrNotFound", err)
	}
}

func TestFATAllocateFreeRoundTrip(t *testing.T) {
	path := mustMkfs(t, 1, 0)
	fs := mustMount(t, path)

	before, err := fs.fat.snapshot()
	if err != nil {
		t.Fatalf("snapshot before: %v", err)
	}

	var blocks []uint16
	prev := uint16(0)
	for i := 0; i < 4; i++ {
		b, err := fs.fat.allocate(prev)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		blocks = append(blocks, b)
		prev = b
	}
	if err := fs.fat.freeChain(blocks[0]); err != nil {
		t.Fatalf("freeChain: %v", err)
	}

	after, err := fs.fat.snapshot()
	if err != nil {
		t.Fatalf("snapshot after: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("FAT not restored after allocate+freeChain (-before +after):\n%s", diff)
	}
}

func TestNoSpaceWhenFATExhausted(t *testing.T) {
	path := mustMkfs(t, 1, 0) // 1 FAT block of 256 bytes => few data blocks
	fs := mustMount(t, path)

	var err error
	for i := 0; i < fs.fat.numData+1; i++ {
		if _, aerr := fs.fat.allocate(0); aerr != nil {
			err = aerr
			break
		}
	}
	if err != ErrNoSpace {
		t.Fatalf("allocate past capacity: got %v, want ErrNoSpace", err)
	}
}

// TestConcurrentReadersDontRace exercises the block store's own mutex
// directly: many goroutines reading distinct files concurrently, none
// going through the kernel's single-fiber scheduling at all. The FD
// table in front of it is per-process state in production, but the
// block store beneath it is shared and must tolerate concurrent callers
// on its own.
func TestConcurrentReadersDontRace(t *testing.T) {
	path := mustMkfs(t, 4, 1)
	fs := mustMount(t, path)

	const n = 16
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%d", i)
		if err := fs.Create("/", name, TypeRegular); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
		if err := fs.Write("/", name, 0, []byte(name), false); err != nil {
			t.Fatalf("Write %s: %v", name, err)
		}
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("f%d", i)
			got, err := fs.Read("/", name, 0, len(name))
			if err != nil {
				return fmt.Errorf("Read %s: %w", name, err)
			}
			if string(got) != name {
				return fmt.Errorf("Read %s: got %q", name, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
