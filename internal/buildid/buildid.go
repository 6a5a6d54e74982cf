// Package buildid implements the build-ID recomputation engine (spec
// §4.K): a streaming 128-bit hash over the edited file's canonicalized
// ELF header, program headers and section contents, written back into
// the file's NT_GNU_BUILD_ID note.
package buildid

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/xxh3"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// CanonicalSize is the number of bytes debugedit's hash produces; a note
// descriptor shorter than this receives a truncated hash, one longer than
// this keeps its extra trailing bytes untouched (spec §4.K: "up to
// min(note_size, 16) bytes").
const CanonicalSize = 16

// Engine accumulates hash input through Write and produces the canonical
// build-ID bytes on Sum. One Engine is used per invocation; it is not
// reusable after Sum.
type Engine struct {
	h *xxh3.Hasher
}

// New creates an Engine, optionally primed with a seed string fed into
// the hash before any file content (spec §4.K: "if a user-supplied seed
// string was given, feed it first").
func New(seed string) *Engine {
	h := xxh3.New()
	if seed != "" {
		_, _ = h.Write([]byte(seed))
	}
	return &Engine{h: h}
}

// Write feeds hash input: the canonicalized ELF header, each program
// header, and each section header plus its payload (NOBITS sections
// contribute their header only). The caller is responsible for
// canonicalizing offsets to zero before calling Write, per spec §4.K.
func (e *Engine) Write(p []byte) {
	_, _ = e.h.Write(p)
}

// Sum finalizes the hash and returns its canonical little-endian byte
// representation: the low 64 bits followed by the high 64 bits, each
// written in little-endian order.
func (e *Engine) Sum() [CanonicalSize]byte {
	u := e.h.Sum128()
	var out [CanonicalSize]byte
	binary.LittleEndian.PutUint64(out[0:8], u.Lo)
	binary.LittleEndian.PutUint64(out[8:16], u.Hi)
	return out
}

// ZeroDescriptor clears the leading min(len(desc), CanonicalSize) bytes
// of a note descriptor in place, making the subsequent hash
// re-computation idempotent: hashing the same file twice with the same
// seed always produces the same build ID, because the bytes about to be
// overwritten never influence their own new value. Bytes past
// CanonicalSize (a wider-than-128-bit hash the note originally held) are
// left untouched, preserving their entropy.
func ZeroDescriptor(desc []byte) {
	n := len(desc)
	if n > CanonicalSize {
		n = CanonicalSize
	}
	for i := 0; i < n; i++ {
		desc[i] = 0
	}
}

// Apply copies up to CanonicalSize bytes of sum into desc, starting at
// its first byte. debugedit never changes a note's size, so a descriptor
// shorter than CanonicalSize receives a truncated hash and one longer
// keeps its tail bytes from ZeroDescriptor/the original content.
func Apply(desc []byte, sum [CanonicalSize]byte) error {
	if len(desc) == 0 {
		return errs.Constraintf("cannot handle 0-byte build ID")
	}
	copy(desc, sum[:])
	return nil
}

// FormatHex renders a note descriptor as lowercase hex with no
// separators, the format debugedit prints to stdout after every run with
// --build-id.
func FormatHex(desc []byte) string {
	return hex.EncodeToString(desc)
}
