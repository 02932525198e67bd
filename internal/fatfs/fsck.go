package fatfs

import "fmt"

// Problem describes a single inconsistency Fsck found.
type Problem struct {
	Path   string
	Detail string
}

func (p Problem) String() string { return fmt.Sprintf("%s: %s", p.Path, p.Detail) }

// Fsck walks the mounted filesystem from the root, checking the
// invariants the allocator and directory code are supposed to maintain on
// their own: every FAT chain terminates without cycling or pointing out of
// range, no data block is claimed by two chains, and every directory
// entry's Size field matches its target's live entry count. It only
// reports; callers decide whether and how to repair.
func (fs *FS) Fsck() ([]Problem, error) {
	var problems []Problem
	owner := make(map[uint16]string)

	walkChain := func(path string, first uint16) error {
		if first == EmptyFirstBlock {
			return nil
		}
		seen := make(map[uint16]bool)
		cur := first
		for {
			if seen[cur] {
				problems = append(problems, Problem{path, fmt.Sprintf("FAT chain cycles back to block %d", cur)})
				return nil
			}
			seen[cur] = true
			if prior, ok := owner[cur]; ok {
				problems = append(problems, Problem{path, fmt.Sprintf("block %d also claimed by %s", cur, prior)})
			} else {
				owner[cur] = path
			}
			next, err := fs.fat.entry(cur)
			if err != nil {
				return err
			}
			if next == fatEOC {
				return nil
			}
			if int(next) < 1 || int(next) > fs.fat.numData {
				problems = append(problems, Problem{path, fmt.Sprintf("chain points at out-of-range block %d", next)})
				return nil
			}
			cur = next
		}
	}

	var walkDir func(path string, block uint16) error
	walkDir = func(path string, block uint16) error {
		if err := walkChain(path, block); err != nil {
			return err
		}
		var entries []DirEntry
		err := fs.forEachEntry(block, func(e DirEntry, _ position) bool {
			if e.isLive() {
				entries = append(entries, e)
			}
			return false
		})
		if err != nil {
			return err
		}
		for _, e := range entries {
			child := path + "/" + e.NameString()
			if e.Type == TypeDir {
				if err := walkDir(child, e.FirstBlock); err != nil {
					return err
				}
				live, err := fs.countLive(e.FirstBlock)
				if err != nil {
					return err
				}
				if e.Size != live {
					problems = append(problems, Problem{child, fmt.Sprintf("directory size %d does not match %d live entries", e.Size, live)})
				}
				continue
			}
			if err := walkChain(child, e.FirstBlock); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walkDir("/", RootBlock); err != nil {
		return nil, err
	}
	return problems, nil
}
