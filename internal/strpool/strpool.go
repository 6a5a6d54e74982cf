// Package strpool implements the string-pool manager (spec §4.C): one
// instance per string section (.debug_str, .debug_line_str). It holds the
// section's original bytes, records which original offsets are still
// referenced (optionally rewriting a base-dir prefix to a dest-dir one),
// and finalizes everything into a new, deduplicated, contiguous buffer.
package strpool

import (
	"bytes"
	"sort"

	"github.com/Manu343726/debugedit/internal/pathutil"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// DummyEntryName is the fixed placeholder value the pool may materialize
// once, used to stand in for .debug_str_offsets entries that turn out to
// be unreachable through any DIE attribute (spec §4.C, §8).
const DummyEntryName = "<debugedit>"

// entry is one registered string: its value (possibly rewritten) and,
// once Finalize has run, its new offset.
type entry struct {
	value     string
	replaced  bool
	newOffset uint32
}

// Pool owns one string section's original bytes plus the new pool being
// built from it.
type Pool struct {
	orig []byte

	baseDir string
	destDir string

	// byOrigOffset maps an original-offset key to its entry. Kept as a map
	// because phase 0 registers in DIE-visitation order, not offset order.
	byOrigOffset map[uint32]*entry

	dummyOffset uint32
	hasDummy    bool

	finalized   bool
	finalBuffer []byte
}

// New creates a Pool over a string section's original payload. baseDir and
// destDir configure the prefix rewrite RegisterReplaced performs; destDir
// may be empty when no rewrite is configured (RegisterReplaced then behaves
// like RegisterExisting and always reports false).
func New(orig []byte, baseDir, destDir string) *Pool {
	return &Pool{
		orig:         orig,
		baseDir:      baseDir,
		destDir:      destDir,
		byOrigOffset: make(map[uint32]*entry),
	}
}

func (p *Pool) readCString(off uint32) (string, error) {
	if int(off) > len(p.orig) {
		return "", errs.Formatf("string offset %d out of range (section size %d)", off, len(p.orig))
	}
	rest := p.orig[off:]
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return "", errs.Formatf("unterminated string at offset %d", off)
	}
	return string(rest[:idx]), nil
}

// RegisterExisting inserts the NUL-terminated string found at origOff in
// the original buffer into the new pool, unchanged. Idempotent: registering
// the same offset twice is a no-op after the first call.
func (p *Pool) RegisterExisting(origOff uint32) error {
	if _, ok := p.byOrigOffset[origOff]; ok {
		return nil
	}
	s, err := p.readCString(origOff)
	if err != nil {
		return err
	}
	p.byOrigOffset[origOff] = &entry{value: s}
	return nil
}

// RegisterReplaced behaves like RegisterExisting, except that when the
// string begins with the configured base directory, the value inserted
// into the new pool is destDir [+ "/" + tail] instead — with no leading
// slash duplication, matching pathutil.Join's single-separator guarantee.
// It reports whether a replacement happened, which tells the caller
// whether index rewrites downstream (str_offsets, stmt_list, etc.) will be
// needed.
func (p *Pool) RegisterReplaced(origOff uint32) (replaced bool, err error) {
	if e, ok := p.byOrigOffset[origOff]; ok {
		return e.replaced, nil
	}

	s, err := p.readCString(origOff)
	if err != nil {
		return false, err
	}

	if p.destDir != "" {
		if tail, ok := pathutil.SkipPrefix(s, p.baseDir); ok {
			value := p.destDir
			if tail != "" {
				value = pathutil.Join(p.destDir, tail)
			}
			p.byOrigOffset[origOff] = &entry{value: value, replaced: true}
			return true, nil
		}
	}

	p.byOrigOffset[origOff] = &entry{value: s}
	return false, nil
}

// Lookup returns the new offset of the string originally at origOff.
// Phase 1 calls this to translate an attribute's recorded offset once the
// pool has been finalized. If acceptMissing is true and no entry was ever
// registered at origOff, Lookup substitutes the dummy entry instead of
// failing — used by the .debug_str_offsets updater (component I) for
// entries that were never reached through a DIE attribute. The dummy must
// have been created with EnsureDummy before Finalize; otherwise this case
// returns an error.
func (p *Pool) Lookup(origOff uint32, acceptMissing bool) (newOffset uint32, usedDummy bool, err error) {
	if !p.finalized {
		return 0, false, errs.Resourcef("strpool.Lookup called before Finalize")
	}
	if e, ok := p.byOrigOffset[origOff]; ok {
		return e.newOffset, false, nil
	}
	if acceptMissing {
		off, err := p.ensureDummy()
		return off, true, err
	}
	return 0, false, errs.Formatf("string offset %d was never registered", origOff)
}

// ensureDummy materializes the "<debugedit>" entry the first time it is
// needed. Per spec §4.C it is created once and only materialized when a
// caller actually needs it (a .debug_str_offsets table exists).
func (p *Pool) ensureDummy() (uint32, error) {
	if p.hasDummy {
		return p.dummyOffset, nil
	}
	if p.finalized {
		return 0, errs.Resourcef("dummy entry requested after Finalize; must be requested during phase 0/1 planning before the buffer is built")
	}
	p.hasDummy = true
	p.dummyOffset = ^uint32(0) // sentinel key, distinct from any real ELF offset space we read from
	p.byOrigOffset[p.dummyOffset] = &entry{value: DummyEntryName}
	return p.dummyOffset, nil
}

// EnsureDummy exposes ensureDummy so the orchestrator can request dummy
// creation up front for every pool with a paired .debug_str_offsets table,
// per spec §4.J ("create the dummy entry when a str-offsets section
// exists").
func (p *Pool) EnsureDummy() error {
	_, err := p.ensureDummy()
	return err
}

// Finalize materializes a contiguous buffer with deduplication: identical
// string values collapse to a single copy, and every entry is assigned its
// new offset. The result becomes the new section payload. The buffer is
// built on the first call; later calls return that same buffer unchanged.
func (p *Pool) Finalize() ([]byte, error) {
	if p.finalized {
		return p.finalBuffer, nil
	}

	// Deterministic order: by original-offset key, so output is stable
	// across runs for a given set of registrations (important for the
	// "identical input, identical output" round-trip law when nothing
	// changed).
	keys := make([]uint32, 0, len(p.byOrigOffset))
	for k := range p.byOrigOffset {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	byValue := make(map[string]uint32, len(keys))
	var buf bytes.Buffer

	for _, k := range keys {
		e := p.byOrigOffset[k]
		if off, ok := byValue[e.value]; ok {
			e.newOffset = off
			continue
		}
		off := uint32(buf.Len())
		buf.WriteString(e.value)
		buf.WriteByte(0)
		byValue[e.value] = off
		e.newOffset = off
	}

	p.finalBuffer = buf.Bytes()
	p.finalized = true
	return p.finalBuffer, nil
}
