package kernel

import "github.com/pennos-project/pennos/internal/fatfs"

// Processes returns a snapshot of every live (non-reaped) PCB, in no
// particular order, for use by introspection built-ins like ps.
func (k *Kernel) Processes() []*PCB {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*PCB, 0, len(k.table))
	for _, p := range k.table {
		out = append(out, p)
	}
	return out
}

// Lookup returns the PCB for pid, if it is still live.
func (k *Kernel) Lookup(pid int) (*PCB, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.table[pid]
	return p, ok
}

// SetFS records the filesystem newly spawned processes inherit a
// descriptor table bound to. Changing it does not affect processes
// already spawned against the previous value.
func (k *Kernel) SetFS(fs *fatfs.FS) {
	k.mu.Lock()
	k.fs = fs
	k.mu.Unlock()
}

// FS returns the filesystem currently mounted for new spawns, or nil if
// none is mounted.
func (k *Kernel) FS() *fatfs.FS {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fs
}
