package file

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrDirLocked is returned when the database home is held by another process.
var ErrDirLocked = errors.New("database home is locked by another process")

// DirLock holds an exclusive flock on a marker file inside the database home
// for the lifetime of a connection.
type DirLock struct {
	f *os.File
}

// AcquireDirLock takes the lock without blocking.
func AcquireDirLock(dir, name string) (*DirLock, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "lock open")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrDirLocked
		}
		return nil, errors.Wrap(err, "lock flock")
	}
	return &DirLock{f: f}, nil
}

// Release drops the lock.
func (l *DirLock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		_ = l.f.Close()
		return errors.Wrap(err, "lock funlock")
	}
	return errors.Wrap(l.f.Close(), "lock close")
}
