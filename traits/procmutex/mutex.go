// Package procmutex implements a robust, process-shared mutex: one that can
// be safely re-acquired after the process holding it dies without calling
// Unlock, the way PTHREAD_MUTEX_ROBUST works for POSIX threads sharing a
// mutex across process boundaries. Go's sync.Mutex has no cross-process
// form and the ecosystem has no robust-mutex package, so this reproduces
// the semantics on top of flock(2), which the kernel releases automatically
// when the owning process exits for any reason.
package procmutex

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Mutex is the fixed-size, pointer-free state placed in shared memory. It
// holds only a diagnostic owner PID; correctness comes entirely from the
// companion flock'd file obtained via Open, not from this struct. Mutex
// must be zero-valued until a Handle first claims it.
type Mutex struct {
	ownerPID atomic.Uint64
}

// Handle is the process-local side of a Mutex: a live file descriptor used
// to flock a companion lock file. Each process that wants to lock a given
// Mutex calls Open with the same lockFilePath to get its own Handle.
type Handle struct {
	mu        *Mutex
	file      *os.File
	recovered bool
}

// Open associates a Handle in this process with the shared Mutex state mu,
// backed by the lock file at lockFilePath. The file is created if absent;
// callers sharing mu across processes must pass the same path.
func Open(mu *Mutex, lockFilePath string) (*Handle, error) {
	f, err := os.OpenFile(lockFilePath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("procmutex: open lock file %s: %w", lockFilePath, err)
	}
	return &Handle{mu: mu, file: f}, nil
}

// Lock blocks until the mutex is acquired. If the previous owner died while
// holding it, the kernel releases the flock on process exit, so Lock
// succeeds transparently; Recovered reports whether that happened.
func (h *Handle) Lock() error {
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("procmutex: lock: %w", err)
	}
	h.claim()
	return nil
}

// TryLock attempts to acquire the mutex without blocking. It reports false,
// not an error, when the mutex is currently held by a live owner.
func (h *Handle) TryLock() (bool, error) {
	err := unix.Flock(int(h.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		h.claim()
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, fmt.Errorf("procmutex: trylock: %w", err)
}

// Unlock releases the mutex. It is the caller's responsibility to only call
// Unlock while holding the lock obtained from Lock or a successful TryLock.
func (h *Handle) Unlock() error {
	h.mu.ownerPID.Store(0)
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("procmutex: unlock: %w", err)
	}
	return nil
}

// Close releases the process-local file descriptor. It does not unlock the
// mutex; call Unlock first if held.
func (h *Handle) Close() error {
	return h.file.Close()
}

// Recovered reports whether the most recent successful Lock/TryLock found
// the mutex marked owned by a PID other than this process — meaning the
// flock itself is the only reason the acquisition succeeded, because the
// previous owner died without unlocking.
func (h *Handle) Recovered() bool {
	return h.recovered
}

func (h *Handle) claim() {
	pid := uint64(os.Getpid())
	prev := h.mu.ownerPID.Swap(pid)
	h.recovered = prev != 0 && prev != pid
}
