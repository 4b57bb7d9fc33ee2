// Package files implements file utilities: existence checks and atomic, lock-protected writes.
package files

import (
	"bufio"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating the parent directories of written files.
const DefaultDirCreationPerm = 0o755

// Exists returns true if the file or directory exists.
func Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// WriteAtomic writes filePath with the contents produced by write.
//
// The contents go to filePath+".tmp" first, which is then atomically renamed to filePath, so
// readers never see a partially written file. A filePath+".lock" file coordinates concurrent
// writers (other processes or goroutines) of the same path. The lock file is left in place:
// removing it could let two writers hold locks on different inodes.
func WriteAtomic(filePath string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(lockPath, func() {
		tmpPath := filePath + ".tmp"
		tmpFile, err := os.Create(tmpPath)
		if err != nil {
			mainErr = errors.Wrapf(err, "creating temporary file %q", tmpPath)
			return
		}
		var tmpFileClosed bool
		defer func() {
			// If we exit with an error, make sure to close and remove the unfinished temporary file.
			if !tmpFileClosed {
				if err := tmpFile.Close(); err != nil {
					klog.Warningf("Failed closing temporary file %q: %v", tmpPath, err)
				}
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
				}
			}
		}()

		bw := bufio.NewWriter(tmpFile)
		if err := write(bw); err != nil {
			mainErr = errors.WithMessagef(err, "while writing %q", tmpPath)
			return
		}
		if err := bw.Flush(); err != nil {
			mainErr = errors.Wrapf(err, "failed to flush %q", tmpPath)
			return
		}
		tmpFileClosed = true
		if err := tmpFile.Close(); err != nil {
			mainErr = errors.Wrapf(err, "failed to close temporary file %q", tmpPath)
			_ = os.Remove(tmpPath)
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move %q to %q", tmpPath, filePath)
			_ = os.Remove(tmpPath)
			return
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to write %q", lockPath, filePath)
	}
	return nil
}

// lockRetryPeriod is the minimum wait between attempts to acquire a busy lock; a random
// amount up to the same period is added.
var lockRetryPeriod = 100 * time.Millisecond

// execOnFileLock opens the lockPath file (or creates if it doesn't yet exist), locks it, and executes the function.
// If the lockPath is already locked, it polls until it acquires the lock.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(lockRetryPeriod + rand.N(lockRetryPeriod))
	}

	// Setup clean up in a deferred function, so it happens even if `fn()` panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			// If we already have an error, don't overwrite it
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()

	fn()
	return
}
