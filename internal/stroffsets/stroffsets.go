// Package stroffsets implements the .debug_str_offsets updater (spec
// §4.I): once a .debug_str/.debug_line_str pool has been finalized, every
// index table's four-byte entries are translated from their original
// string-section offset to the new, deduplicated one.
package stroffsets

import (
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// DummyWarner is called whenever an entry could not be resolved to a
// registered string and the pool's dummy entry was substituted instead
// (spec §4.I: "substituting the dummy entry and emitting a diagnostic").
type DummyWarner func(tableOffset int64, entryIndex int, origOffset uint32)

// Rewrite walks every index-table header in data and rewrites each
// table's four-byte entries in place: reads the current offset through
// idx (so REL/RELA relocations are honored), looks it up in pool with
// accept-missing semantics, and writes the new offset back through idx.
func Rewrite(codec bitcodec.Codec, data []byte, idx *reloc.Index, pool *strpool.Pool, warn DummyWarner) error {
	pos := 0
	for pos < len(data) {
		unitStart := pos
		if pos+4 > len(data) {
			return errs.Formatf("truncated .debug_str_offsets unit header at 0x%x", unitStart)
		}
		unitLength := codec.Read32(data[pos:])
		if unitLength == 0xffffffff {
			return errs.Formatf("64-bit DWARF not supported in .debug_str_offsets at 0x%x", unitStart)
		}
		pos += 4
		unitEnd := unitStart + 4 + int(unitLength)
		if unitEnd > len(data) {
			return errs.Formatf(".debug_str_offsets unit at 0x%x does not fit into section", unitStart)
		}

		if pos+2 > unitEnd {
			return errs.Formatf("truncated .debug_str_offsets version at 0x%x", unitStart)
		}
		version := codec.Read16(data[pos:])
		if version != 5 {
			return errs.Formatf("unsupported .debug_str_offsets version %d at 0x%x", version, unitStart)
		}
		pos += 2

		if pos+2 > unitEnd {
			return errs.Formatf("truncated .debug_str_offsets padding at 0x%x", unitStart)
		}
		padding := codec.Read16(data[pos:])
		if padding != 0 {
			return errs.Formatf("nonzero .debug_str_offsets padding at 0x%x", unitStart)
		}
		pos += 2

		entryIdx := 0
		for pos+4 <= unitEnd {
			ptr := uint64(pos)
			raw := codec.Read32(data[pos:])
			effective := idx.Read32Relocated(data, ptr, raw)

			newOff, usedDummy, err := pool.Lookup(effective, true)
			if err != nil {
				return err
			}
			if usedDummy && warn != nil {
				warn(int64(unitStart), entryIdx, effective)
			}

			writeAt := pos
			idx.Write32Relocated(ptr, newOff, func(v uint32) { codec.Write32(data[writeAt:], v) })

			pos += 4
			entryIdx++
		}
	}

	return nil
}
