// Package macro implements the .debug_macro walker (spec §4.H): it scans
// every macro subsection's operation stream, rewriting the rare operands
// that reference rewritten state (a DW_MACRO_*_indirect .debug_str
// offset, or a GNU-extension line_offset field) while leaving the bulk of
// the opcode stream — inline define/undef strings, start_file/end_file —
// untouched.
package macro

import (
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// Opcodes recognized in a .debug_macro operation stream (the DWARF5
// DW_MACRO_* set, unified with the GNU extension names the teacher's
// source material uses since both encode identically).
const (
	opDefine             = 0x01
	opUndef              = 0x02
	opStartFile          = 0x03
	opEndFile            = 0x04
	opDefineIndirect     = 0x05
	opUndefIndirect      = 0x06
	opTransparentInclude = 0x07
	opDefineStrx         = 0x08
	opUndefStrx          = 0x09
)

const (
	flagOffsetSize64    = 0x01
	flagDebugLineOffset = 0x02
	flagsKnownMask      = flagOffsetSize64 | flagDebugLineOffset
)

// Hooks supply the cross-component operations macro operands need:
// resolving a strx index to its original .debug_str offset (which
// requires the owning CU's str_offsets_base, so it cannot live in this
// package), and translating an old .debug_line table offset to its new
// one once the line-table registry has emitted its rebuilt section.
type Hooks struct {
	// ResolveStrx resolves strxIndex to the .debug_str byte offset it
	// points at, using the CU whose macros_offs equals subsectionOffset
	// (falling back to the first CU when none matches, per spec §4.H).
	ResolveStrx func(subsectionOffset int, strxIndex uint32) (uint32, error)

	// TranslateLineOffset returns the new .debug_line offset for an old
	// one, once F.EmitSection has run. Only called in phase 1, and only
	// when a subsection's flags carry the line_offset field.
	TranslateLineOffset func(oldOffset int) (int, error)
}

// Walk scans every subsection of a .debug_macro section's data, in
// phase-0 (register strings with pool) or phase-1 (rewrite relocatable
// offsets) mode. A subsection boundary is detected the same way the
// original tool does: the walker treats the next byte as a new header
// whenever it starts a subsection, i.e. at data[0] and immediately after
// an opEndFile-terminated run reaches a zero opcode byte.
func Walk(codec bitcodec.Codec, data []byte, relIdx *reloc.Index, pool *strpool.Pool, hooks Hooks, phase int) error {
	pos := 0
	for pos < len(data) {
		subsectionStart := pos

		if pos+3 > len(data) {
			return errs.Formatf("truncated .debug_macro header at 0x%x", subsectionStart)
		}
		version := codec.Read16(data[pos:])
		if version < 4 || version > 5 {
			return errs.Formatf("unhandled .debug_macro version %d at 0x%x", version, subsectionStart)
		}
		pos += 2

		flags := data[pos]
		pos++
		if flags&^flagsKnownMask != 0 {
			return errs.Formatf("unhandled .debug_macro flags 0x%x at 0x%x", flags, subsectionStart)
		}
		offsetLen := 4
		if flags&flagOffsetSize64 != 0 {
			offsetLen = 8
		}
		if offsetLen != 4 {
			return errs.Formatf("8-byte .debug_macro offsets are not supported")
		}

		if flags&flagDebugLineOffset != 0 {
			if pos+4 > len(data) {
				return errs.Formatf("truncated .debug_macro line_offset at 0x%x", pos)
			}
			if phase == 1 {
				ptr := uint64(pos)
				raw := codec.Read32(data[pos:])
				oldIdx := int(relIdx.Read32Relocated(data, ptr, raw))
				if hooks.TranslateLineOffset == nil {
					return errs.Resourcef(".debug_macro line_offset present but no line-table translator configured")
				}
				newIdx, err := hooks.TranslateLineOffset(oldIdx)
				if err != nil {
					return err
				}
				writeAt := pos
				relIdx.Write32Relocated(ptr, uint32(newIdx), func(v uint32) { codec.Write32(data[writeAt:], v) })
			}
			pos += 4
		}

		var err error
		pos, err = walkOps(codec, data, pos, subsectionStart, relIdx, pool, hooks, phase)
		if err != nil {
			return err
		}
	}

	return nil
}

// walkOps processes operations until a terminating zero opcode (or end of
// section data, for a final subsection with no trailing zero byte),
// returning the position just past the terminator.
func walkOps(codec bitcodec.Codec, data []byte, pos, subsectionStart int, relIdx *reloc.Index, pool *strpool.Pool, hooks Hooks, phase int) (int, error) {
	for {
		if pos >= len(data) {
			return pos, nil
		}
		op := data[pos]
		pos++
		if op == 0 {
			return pos, nil
		}

		switch op {
		case opDefine, opUndef:
			_, n, err := bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n
			end := indexByteOrEnd(data, pos, 0)
			if end < 0 {
				return 0, errs.Formatf("unterminated .debug_macro define/undef string at 0x%x", pos)
			}
			pos = end + 1

		case opStartFile:
			_, n, err := bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n
			_, n, err = bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n

		case opEndFile:
			// no operands

		case opDefineIndirect, opUndefIndirect:
			_, n, err := bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n

			if pos+4 > len(data) {
				return 0, errs.Formatf("truncated .debug_macro indirect offset at 0x%x", pos)
			}
			ptr := uint64(pos)
			raw := codec.Read32(data[pos:])
			origOff := relIdx.Read32Relocated(data, ptr, raw)

			if phase == 0 {
				if err := pool.RegisterExisting(origOff); err != nil {
					return 0, err
				}
			} else {
				newOff, _, err := pool.Lookup(origOff, false)
				if err != nil {
					return 0, err
				}
				writeAt := pos
				relIdx.Write32Relocated(ptr, newOff, func(v uint32) { codec.Write32(data[writeAt:], v) })
			}
			pos += 4

		case opTransparentInclude:
			if pos+4 > len(data) {
				return 0, errs.Formatf("truncated .debug_macro transparent_include offset at 0x%x", pos)
			}
			pos += 4

		case opDefineStrx, opUndefStrx:
			_, n, err := bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n

			strxIdx, n, err := bitcodec.ReadULEB128(data[pos:])
			if err != nil {
				return 0, err
			}
			pos += n

			if phase == 0 {
				if hooks.ResolveStrx == nil {
					return 0, errs.Resourcef(".debug_macro strx operand present but no strx resolver configured")
				}
				origOff, err := hooks.ResolveStrx(subsectionStart, strxIdx)
				if err != nil {
					return 0, err
				}
				if err := pool.RegisterExisting(origOff); err != nil {
					return 0, err
				}
			}
			// The strx index itself is never rewritten (spec §4.H): only
			// the .debug_str_offsets entry it points at changes, and that
			// is component I's job.

		default:
			return 0, errs.Formatf("unhandled DW_MACRO op 0x%x at 0x%x", op, pos-1)
		}
	}
}

func indexByteOrEnd(data []byte, start int, b byte) int {
	for i := start; i < len(data); i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}
