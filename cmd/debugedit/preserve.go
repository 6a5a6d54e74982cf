package debugedit

import (
	"os"
	"syscall"
	"time"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// atimeOf reads the access time out of info's platform-specific Sys()
// payload, falling back to ModTime when the underlying syscall struct
// isn't available (e.g. in tests against a synthetic os.FileInfo).
func atimeOf(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return info.ModTime()
}

// attrs captures an input file's mode and times before it is widened for
// writing, so they can be restored afterward (original_source/tools/
// debugedit.c's main: stat before open, chmod, fchmod-restore, and,
// under -p, utime-restore).
type attrs struct {
	mode  os.FileMode
	atime time.Time
	mtime time.Time
}

// widenForWrite stats path, records its attributes, and if it isn't
// already owner read-write, chmod's it u+rw for the duration of the edit.
func widenForWrite(path string) (attrs, error) {
	info, err := os.Stat(path)
	if err != nil {
		return attrs{}, errs.Wrap(errs.Resource, err, "stat %s", path)
	}

	a := attrs{mode: info.Mode(), mtime: info.ModTime(), atime: atimeOf(info)}

	if info.Mode().Perm()&0600 != 0600 {
		if err := os.Chmod(path, info.Mode()|0600); err != nil {
			return attrs{}, errs.Wrap(errs.Resource, err, "widening mode on %s", path)
		}
	}

	return a, nil
}

// restoreAttrs puts path's mode back, and its atime/mtime too when
// preserveDates is set (--preserve-dates/-p).
func restoreAttrs(path string, a attrs, preserveDates bool) error {
	if err := os.Chmod(path, a.mode); err != nil {
		return errs.Wrap(errs.Resource, err, "restoring mode on %s", path)
	}
	if preserveDates {
		if err := os.Chtimes(path, a.atime, a.mtime); err != nil {
			return errs.Wrap(errs.Resource, err, "restoring timestamps on %s", path)
		}
	}
	return nil
}
