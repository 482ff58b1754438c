// Package shm is the shared-memory carrier underneath rmp and tp: it
// creates or opens a named POSIX shared-memory object, sizes it, and maps
// it into the process's address space. The standard library has no POSIX
// shared-memory API, so this is built directly on golang.org/x/sys/unix.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Region is a mapped shared-memory segment. Zero value is not usable;
// construct with CreateOrOpen or OpenReadOnly.
type Region struct {
	name      string
	file      *os.File
	data      []byte
	isCreator bool
}

// path returns the backing file path for name under /dev/shm, the same
// convention glibc's shm_open uses on Linux.
func path(name string) string {
	return filepath.Join("/dev/shm", name)
}

// CreateOrOpen opens the shared-memory object named name, creating and
// zero-sizing it to size bytes if it does not already exist. IsCreator
// reports which of those two happened, so the caller knows whether it is
// responsible for placement-constructing the region's contents.
func CreateOrOpen(name string, size int64) (*Region, error) {
	p := path(name)

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	isCreator := true
	if os.IsExist(err) {
		isCreator = false
		f, err = os.OpenFile(p, os.O_RDWR, 0o600)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", p, err)
	}

	if isCreator {
		if err := f.Truncate(size); err != nil {
			f.Close()
			os.Remove(p)
			return nil, fmt.Errorf("shm: truncate %s to %d: %w", p, size, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", p, err)
	}

	return &Region{name: name, file: f, data: data, isCreator: isCreator}, nil
}

// OpenReadOnly maps an existing shared-memory object for reading only. It
// fails if the object does not already exist, since a read-only attacher
// can never be the creator.
func OpenReadOnly(name string, size int64) (*Region, error) {
	p := path(name)
	f, err := os.OpenFile(p, os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s read-only: %w", p, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s read-only: %w", p, err)
	}
	return &Region{name: name, file: f, data: data, isCreator: false}, nil
}

// IsCreator reports whether this process created the backing object (as
// opposed to attaching to one another process created).
func (r *Region) IsCreator() bool {
	return r.isCreator
}

// Ptr returns the mapped byte slice backing the region.
func (r *Region) Ptr() []byte {
	return r.data
}

// Unmap removes this process's mapping. The underlying object, if not also
// unlinked, remains for other processes.
func (r *Region) Unmap() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("shm: munmap %s: %w", r.name, err)
	}
	return r.file.Close()
}

// Unlink removes the named object from the filesystem. Existing mappings
// (including this process's own, if not yet Unmap'd) remain valid until
// unmapped; new CreateOrOpen/OpenReadOnly calls for the same name will
// create a fresh object.
func (r *Region) Unlink() error {
	if err := os.Remove(path(r.name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: unlink %s: %w", r.name, err)
	}
	return nil
}
