// Package sourcelist implements the append-only source-path sink (spec
// §4.L): every directory and file path the DIE walker resolves under
// base-dir is recorded here for the caller's --list-file output.
package sourcelist

import (
	"io"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// Sink appends canonicalized paths to an underlying writer, one per call,
// each terminated by a NUL byte rather than a newline (spec §4.L): this
// output is meant to be fed to tools like cpio/tar's -T null-separated
// file-list readers, not read by eye.
type Sink struct {
	w io.Writer
}

// New wraps w as a Sink. w is never closed by this package; the caller
// owns its lifetime.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

// WriteDir appends a directory path, normalized to end with exactly one
// trailing '/'. An empty path is recorded as "/" rather than as a bare
// empty entry, matching the "replaced by '/' if the prefix strip produced
// an empty remainder" rule.
func (s *Sink) WriteDir(path string) error {
	if path == "" {
		path = "/"
	} else if path[len(path)-1] != '/' {
		path = path + "/"
	}
	return s.write(path)
}

// WriteFile appends a file path verbatim (no trailing separator added).
func (s *Sink) WriteFile(path string) error {
	return s.write(path)
}

func (s *Sink) write(path string) error {
	buf := append([]byte(path), 0)
	for len(buf) > 0 {
		n, err := s.w.Write(buf)
		if err != nil {
			return errs.Wrap(errs.Resource, err, "writing source list entry")
		}
		buf = buf[n:]
	}
	return nil
}
