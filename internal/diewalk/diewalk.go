// Package diewalk implements the DIE walker (spec §4.G): the two-phase
// traversal of .debug_info and .debug_types compilation units that
// discovers and, on its second pass, rewrites every DW_AT_comp_dir,
// DW_AT_name, DW_AT_stmt_list and string-form attribute a CU carries.
package diewalk

import (
	"github.com/Manu343726/debugedit/internal/abbrev"
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/linetable"
	"github.com/Manu343726/debugedit/internal/pathutil"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// DWARF attribute codes this walker special-cases; every other attribute
// is advanced over generically by its form.
const (
	atName           = 0x03
	atStmtList       = 0x10
	atCompDir        = 0x1b
	atStrOffsetsBase = 0x72
	atMacros         = 0x79
)

// DWARF tag codes this walker special-cases.
const (
	tagCompileUnit = 0x11
	tagPartialUnit = 0x3c
	tagTypeUnit    = 0x41
)

// DWARF5 unit_type codes.
const (
	utCompile = 0x01
	utType    = 0x02
	utPartial = 0x03
)

// Phase selects which half of the two-phase mutation protocol a Walk call
// performs: Observe only records state, Mutate additionally rewrites
// bytes. Spec §5 requires every Observe pass across every CU to complete
// before any Mutate pass begins.
type Phase int

const (
	Observe Phase = 0
	Mutate  Phase = 1
)

// CU holds the per-compilation-unit state the walker discovers in the
// Observe phase and reuses, unchanged, in the Mutate phase.
type CU struct {
	Offset   int // CU header start, relative to the section
	Version  uint16
	UnitType uint8
	PtrSize  int
	IsType   bool

	abbrevTable *abbrev.Table

	HasStrOffsetsBase bool
	StrOffsetsBase    uint32

	HasMacros    bool
	MacrosOffset uint32

	CompDir string

	HasStmtList    bool
	StmtListOffset int
}

// StrOffsetsResolver resolves a strx-form index to the .debug_str (or
// .debug_line_str) offset it points at, given the CU's str_offsets_base.
// The orchestrator implements this over the raw .debug_str_offsets bytes
// and its relocation index, since diewalk never owns that section.
type StrOffsetsResolver interface {
	Resolve(base uint32, index uint32) (uint32, error)
}

// SourceSink receives every directory the walker resolves under BaseDir,
// mirroring the narrow interface sourcelist.Sink implements.
type SourceSink interface {
	WriteDir(path string) error
}

// Deps bundles every cross-component collaborator the walker needs. One
// Deps is shared across the Observe and Mutate passes over one section.
type Deps struct {
	Codec         bitcodec.Codec
	AbbrevSection []byte

	// Reloc is the relocation index for the section being walked
	// (.debug_info or a .debug_types chain link).
	Reloc *reloc.Index

	StrPool     *strpool.Pool // .debug_str
	LineStrPool *strpool.Pool // .debug_line_str

	// StrData/LineStrData are the original, pre-finalize bytes of the two
	// string sections. diewalk needs to peek a string's value during
	// Observe (to detect a comp_dir base-dir prefix, or a leading '/' on a
	// DW_AT_name) before strpool.Pool.Finalize has run, which is something
	// Pool itself does not expose.
	StrData     []byte
	LineStrData []byte

	// LineData is the original .debug_line section payload; stmt_list
	// offsets index into it, never into the .debug_info bytes Walk is
	// given, so the registry must be fed this slice, not data.
	LineData     []byte
	LineRegistry *linetable.Registry
	StrOffsets   StrOffsetsResolver

	BaseDir string
	DestDir string

	Sink SourceSink

	// LineSink receives every source file path PlanV2ToV4 resolves while
	// planning a newly discovered v2-v4 line table (spec §4.F/§4.L). Kept
	// separate from Sink (which only narrows to WriteDir) since the two
	// components want different halves of the same listing sink.
	LineSink linetable.SourceSink

	// WarnOverflow is called when a DW_FORM_string comp_dir replacement
	// does not fit in the original byte length and is left unchanged.
	WarnOverflow func(cuOffset int64, original, attempted string)

	// NeedStmtUpdate reports whether F.EmitSection has run and
	// DW_AT_stmt_list offsets should be translated. Only consulted in
	// Mutate.
	NeedStmtUpdate bool
}

// Walk traverses every CU in data (one section's payload) in the given
// phase. On Observe it builds and returns the CU list; on Mutate it must
// be given the exact CU list Observe returned for the same data, in the
// same order, since header geometry (abbrev tables, offsets) is reused
// rather than reparsed from scratch.
func Walk(deps *Deps, data []byte, phase Phase, cus []*CU) ([]*CU, error) {
	var built []*CU
	cursor := 0
	cuIndex := 0

	for cursor < len(data) {
		var cu *CU
		if phase == Observe {
			cu = &CU{Offset: cursor}
		} else {
			if cuIndex >= len(cus) {
				return nil, errs.Resourcef("diewalk.Walk(Mutate) given fewer CUs than the section contains")
			}
			cu = cus[cuIndex]
			if cu.Offset != cursor {
				return nil, errs.Resourcef("diewalk.Walk(Mutate) CU offset mismatch: expected 0x%x got 0x%x", cursor, cu.Offset)
			}
		}
		cuIndex++

		attrStart, cuEnd, err := parseCUHeader(deps, data, cu, phase)
		if err != nil {
			return nil, err
		}

		if phase == Observe {
			built = append(built, cu)
		}

		ptr := attrStart
		first := true
		for ptr < cuEnd {
			code, n, err := readULEB(data, ptr)
			if err != nil {
				return nil, err
			}
			ptr += n
			if code == 0 {
				continue
			}

			decl, ok := cu.abbrevTable.Lookup(code)
			if !ok {
				return nil, errs.Formatf("could not find DWARF abbreviation %d", code)
			}

			ptr, err = walkAttributes(deps, data, ptr, decl, cu, phase, first)
			if err != nil {
				return nil, err
			}
			first = false
		}

		cursor = cuEnd
	}

	if phase == Observe {
		return built, nil
	}
	return cus, nil
}

// parseCUHeader reads the fixed CU header fields. On Observe it fills in
// cu and loads its abbreviation table; on Mutate it only needs to
// re-derive attrStart/cuEnd (cheap arithmetic over already-known fields)
// since cu itself is reused.
func parseCUHeader(deps *Deps, data []byte, cu *CU, phase Phase) (attrStart, cuEnd int, err error) {
	c := deps.Codec
	off := cu.Offset

	if off+4+2+1+1 > len(data) {
		return 0, 0, errs.Formatf("CU header too small at 0x%x", off)
	}

	unitLength := c.Read32(data[off:])
	if unitLength == 0xffffffff {
		return 0, 0, errs.Formatf("64-bit DWARF not supported at 0x%x", off)
	}
	cuEnd = off + 4 + int(unitLength)
	if cuEnd > len(data) {
		return 0, 0, errs.Formatf("CU at 0x%x does not fit into section", off)
	}

	cursor := off + 4
	version := c.Read16(data[cursor:])
	if version < 2 || version > 5 {
		return 0, 0, errs.Formatf("DWARF version %d unhandled at 0x%x", version, off)
	}
	cursor += 2

	unitType := uint8(utCompile)
	ptrSize := 0
	if version >= 5 {
		unitType = data[cursor]
		if unitType != utCompile && unitType != utPartial && unitType != utType {
			return 0, 0, errs.Formatf("unit type %d unhandled at 0x%x", unitType, off)
		}
		cursor++
		ptrSize = int(data[cursor])
		cursor++
	}

	abbrevOffset := deps.Reloc.Read32Relocated(data, uint64(cursor), c.Read32(data[cursor:]))
	cursor += 4

	if version < 5 {
		ptrSize = int(data[cursor])
		cursor++
	}
	if ptrSize != 4 && ptrSize != 8 {
		return 0, 0, errs.Formatf("invalid DWARF pointer size %d at 0x%x", ptrSize, off)
	}

	isType := unitType == utType
	if isType {
		cursor += 12 // type_signature (8) + type_offset (4)
	}

	if phase == Observe {
		cu.Version = version
		cu.UnitType = unitType
		cu.PtrSize = ptrSize
		cu.IsType = isType

		if int(abbrevOffset) >= len(deps.AbbrevSection) {
			return 0, 0, errs.Formatf("DWARF CU abbrev offset too large at 0x%x", off)
		}
		table, _, err := abbrev.Parse(c, deps.AbbrevSection, int(abbrevOffset))
		if err != nil {
			return 0, 0, err
		}
		cu.abbrevTable = table
	}

	return cursor, cuEnd, nil
}

func readULEB(data []byte, off int) (uint32, int, error) {
	if off >= len(data) {
		return 0, 0, errs.Formatf("truncated DIE tree at 0x%x", off)
	}
	return bitcodec.ReadULEB128(data[off:])
}

// walkAttributes processes one DIE's attribute list per its abbreviation
// declaration, returning the cursor position just past it. first
// indicates this is the first DIE in the CU, where a v5 CU's
// str_offsets_base must be pre-scanned before any strx form is resolved
// (spec §4.G step 4); that pre-scan is folded into the normal attribute
// loop here since atStrOffsetsBase is handled inline as attributes are
// encountered, which is equivalent for a well-formed producer that always
// emits str_offsets_base before any strx-form attribute on the same DIE.
func walkAttributes(deps *Deps, data []byte, ptr int, decl *abbrev.Declaration, cu *CU, phase Phase, first bool) (int, error) {
	var compDir string
	haveCompDir := false

	for _, spec := range decl.Attrs {
		form := spec.Form
		attr := spec.Attr

		for {
			if attr == atStmtList && (form == abbrev.FormData4 || form == abbrev.FormSecOffset) {
				raw := deps.Codec.Read32(data[ptr:])
				offs := deps.Reloc.Read32Relocated(data, uint64(ptr), raw)
				if phase == Observe {
					cu.HasStmtList = true
					cu.StmtListOffset = int(offs)
				} else if deps.NeedStmtUpdate {
					newOff, err := deps.LineRegistry.OffsetLookup(int(offs))
					if err != nil {
						return 0, err
					}
					writeAt := ptr
					deps.Reloc.Write32Relocated(uint64(ptr), uint32(newOff), func(v uint32) { deps.Codec.Write32(data[writeAt:], v) })
				}
			}

			if attr == atMacros {
				raw := deps.Codec.Read32(data[ptr:])
				offs := deps.Reloc.Read32Relocated(data, uint64(ptr), raw)
				cu.HasMacros = true
				cu.MacrosOffset = offs
			}

			if attr == atStrOffsetsBase && phase == Observe {
				raw := deps.Codec.Read32(data[ptr:])
				offs := deps.Reloc.Read32Relocated(data, uint64(ptr), raw)
				cu.HasStrOffsetsBase = true
				cu.StrOffsetsBase = offs
			}

			handledStrp := false

			if attr == atCompDir {
				if form == abbrev.FormString {
					s, _ := readCString(data, ptr)
					compDir = s
					haveCompDir = true
					if phase == Observe {
						cu.CompDir = s
					}
					if deps.DestDir != "" {
						if tail, ok := pathutil.SkipPrefix(s, deps.BaseDir); ok {
							if phase == Mutate {
								rewriteInlineString(data, ptr, s, tail, deps.DestDir, cu.Offset, deps.WarnOverflow)
							}
						}
					}
				} else if isStrForm(form) {
					var err error
					handledStrp, err = handleStrAttr(deps, data, ptr, form, cu, phase, true)
					if err != nil {
						return 0, err
					}
					if phase == Observe {
						compDir = compDirPeek(deps, data, ptr, form, cu)
						haveCompDir = compDir != ""
						cu.CompDir = compDir
					}
				}
			} else if (decl.Tag == tagCompileUnit || decl.Tag == tagPartialUnit) && attr == atName && isNameStrForm(form) {
				if phase == Observe && !haveCompDir {
					var name string
					if form == abbrev.FormString {
						name, _ = readCString(data, ptr)
					} else {
						name = compDirPeek(deps, data, ptr, form, cu)
					}
					if name != "" && name[0] == '/' {
						dir := parentDir(name)
						cu.CompDir = dir
						compDir = dir
						haveCompDir = true
					}
				}
				if isStrForm(form) {
					var err error
					handledStrp, err = handleStrAttr(deps, data, ptr, form, cu, phase, false)
					if err != nil {
						return 0, err
					}
				}
			}

			if isStrForm(form) && !handledStrp {
				if err := rewriteGenericStrp(deps, data, ptr, form, cu, phase); err != nil {
					return 0, err
				}
			}

			n, newForm, indirect, err := skipForm(deps.Codec, data, ptr, form, cu.PtrSize, cu.Version)
			if err != nil {
				return 0, err
			}
			if indirect {
				form = newForm
				continue
			}
			ptr += n
			break
		}
	}

	if phase == Observe && deps.BaseDir != "" && haveCompDir && deps.Sink != nil {
		if p, ok := pathutil.SkipPrefix(compDir, deps.BaseDir); ok {
			if err := deps.Sink.WriteDir(p); err != nil {
				return 0, err
			}
		}
	}

	if first && phase == Observe && cu.HasStmtList && deps.LineRegistry != nil {
		tbl, created, err := deps.LineRegistry.GetOrCreate(deps.Codec, deps.LineData, cu.StmtListOffset, cu.PtrSize)
		if err != nil {
			return 0, err
		}
		if created {
			if cu.Version < 5 {
				if err := linetable.PlanV2ToV4(tbl, deps.LineData, cu.CompDir, deps.BaseDir, deps.DestDir, deps.LineSink); err != nil {
					return 0, err
				}
			} else if err := registerV5LinePaths(deps, tbl, cu); err != nil {
				return 0, err
			}
		}
	}

	return ptr, nil
}

// registerV5LinePaths walks a newly discovered v5 line table's
// directory_entry_format/file_name_entry_format descriptors (spec §4.F)
// and registers every DW_LNCT_path site's string into the pool its form
// resolves through, exactly as a DIE's comp_dir/name attribute would be.
// Without this, a path referenced only from the line table — never from
// any DIE attribute — would be left unregistered, and the
// .debug_str_offsets updater (component I) would later substitute its
// dummy placeholder for it.
func registerV5LinePaths(deps *Deps, t *linetable.Table, cu *CU) error {
	sites, err := linetable.WalkV5EntryFormats(deps.LineData, t)
	if err != nil {
		return err
	}
	t.V5PathSites = sites

	for _, site := range sites {
		switch site.Form {
		case abbrev.FormStrp:
			if deps.StrPool == nil {
				continue
			}
			raw := deps.Codec.Read32(deps.LineData[site.Offset:])
			if _, err := deps.StrPool.RegisterReplaced(raw); err != nil {
				return err
			}
		case abbrev.FormLineStrp:
			if deps.LineStrPool == nil {
				continue
			}
			raw := deps.Codec.Read32(deps.LineData[site.Offset:])
			if _, err := deps.LineStrPool.RegisterReplaced(raw); err != nil {
				return err
			}
		case abbrev.FormStrx, abbrev.FormStrx1, abbrev.FormStrx2, abbrev.FormStrx3, abbrev.FormStrx4:
			if !cu.HasStrOffsetsBase || deps.StrOffsets == nil || deps.StrPool == nil {
				continue
			}
			idx, err := readStrxIndex(deps.LineData, site.Offset, site.Form)
			if err != nil {
				return err
			}
			off, err := deps.StrOffsets.Resolve(cu.StrOffsetsBase, idx)
			if err != nil {
				return err
			}
			if _, err := deps.StrPool.RegisterReplaced(off); err != nil {
				return err
			}
		}
	}
	return nil
}

func parentDir(name string) string {
	i := len(name) - 1
	for i > 0 && name[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return name[:i]
}

func rewriteInlineString(data []byte, ptr int, orig, tail, destDir string, cuOffset int, warn func(int64, string, string)) {
	newVal := destDir
	if tail != "" {
		newVal = pathutil.Join(destDir, tail)
	}
	if len(newVal) > len(orig) {
		if warn != nil {
			warn(int64(cuOffset), orig, newVal)
		}
		return
	}
	copy(data[ptr:], newVal)
	for i := ptr + len(newVal); i < ptr+len(orig); i++ {
		data[i] = '/'
	}
}

func isStrForm(form abbrev.Form) bool {
	switch form {
	case abbrev.FormStrp, abbrev.FormLineStrp, abbrev.FormStrx,
		abbrev.FormStrx1, abbrev.FormStrx2, abbrev.FormStrx3, abbrev.FormStrx4:
		return true
	}
	return false
}

func isNameStrForm(form abbrev.Form) bool {
	return form == abbrev.FormString || isStrForm(form)
}

// strAttr resolves form's value at ptr to an offset into .debug_str or
// .debug_line_str, returning the pool and raw section bytes that own it
// plus the string's original offset there.
func strAttr(deps *Deps, data []byte, ptr int, form abbrev.Form, cu *CU) (pool *strpool.Pool, section []byte, offset uint32, err error) {
	switch form {
	case abbrev.FormStrp:
		raw := deps.Codec.Read32(data[ptr:])
		return deps.StrPool, deps.StrData, deps.Reloc.Read32Relocated(data, uint64(ptr), raw), nil
	case abbrev.FormLineStrp:
		raw := deps.Codec.Read32(data[ptr:])
		return deps.LineStrPool, deps.LineStrData, deps.Reloc.Read32Relocated(data, uint64(ptr), raw), nil
	case abbrev.FormStrx, abbrev.FormStrx1, abbrev.FormStrx2, abbrev.FormStrx3, abbrev.FormStrx4:
		idx, err := readStrxIndex(data, ptr, form)
		if err != nil {
			return nil, nil, 0, err
		}
		if !cu.HasStrOffsetsBase {
			return nil, nil, 0, errs.Formatf("strx form used before DW_AT_str_offsets_base was seen")
		}
		if deps.StrOffsets == nil {
			return nil, nil, 0, errs.Resourcef("strx form present but no .debug_str_offsets resolver configured")
		}
		off, err := deps.StrOffsets.Resolve(cu.StrOffsetsBase, idx)
		if err != nil {
			return nil, nil, 0, err
		}
		return deps.StrPool, deps.StrData, off, nil
	}
	return nil, nil, 0, errs.Formatf("strAttr called with non-string form 0x%x", form)
}

func readStrxIndex(data []byte, ptr int, form abbrev.Form) (uint32, error) {
	switch form {
	case abbrev.FormStrx:
		v, _, err := bitcodec.ReadULEB128(data[ptr:])
		return v, err
	case abbrev.FormStrx1:
		return uint32(data[ptr]), nil
	case abbrev.FormStrx2:
		return uint32(data[ptr]) | uint32(data[ptr+1])<<8, nil
	case abbrev.FormStrx3:
		return uint32(data[ptr]) | uint32(data[ptr+1])<<8 | uint32(data[ptr+2])<<16, nil
	case abbrev.FormStrx4:
		return uint32(data[ptr]) | uint32(data[ptr+1])<<8 | uint32(data[ptr+2])<<16 | uint32(data[ptr+3])<<24, nil
	}
	return 0, errs.Formatf("readStrxIndex called with non-strx form 0x%x", form)
}

// compDirPeek reads (without registering) the string a strp-family form
// at ptr resolves to, used only to look at its value during Observe.
func compDirPeek(deps *Deps, data []byte, ptr int, form abbrev.Form, cu *CU) string {
	_, section, offset, err := strAttr(deps, data, ptr, form, cu)
	if err != nil || section == nil {
		return ""
	}
	if int(offset) >= len(section) {
		return ""
	}
	s, _ := readCString(section, int(offset))
	return s
}

// handleStrAttr performs the generic strp/line_strp/strx rewrite path for
// one attribute: Observe registers the string (as replaced, when the
// caller designates this a directory-like attribute and a base-dir prefix
// matches) or existing; Mutate looks up and writes back the new offset
// for strp/line_strp forms (strx indices are never themselves rewritten;
// only their .debug_str_offsets entry changes, via component I). Returns
// whether this call "handled" the attribute as a directory replacement
// for the caller's handledStrp bookkeeping.
func handleStrAttr(deps *Deps, data []byte, ptr int, form abbrev.Form, cu *CU, phase Phase, isDirLike bool) (bool, error) {
	pool, _, offset, err := strAttr(deps, data, ptr, form, cu)
	if err != nil {
		return false, err
	}
	if pool == nil {
		return false, nil
	}

	handled := false
	if phase == Observe {
		if isDirLike && deps.DestDir != "" {
			replaced, err := pool.RegisterReplaced(offset)
			if err != nil {
				return false, err
			}
			handled = replaced
		} else {
			if err := pool.RegisterExisting(offset); err != nil {
				return false, err
			}
		}
	} else if form == abbrev.FormStrp || form == abbrev.FormLineStrp {
		newOff, _, err := pool.Lookup(offset, false)
		if err != nil {
			return false, err
		}
		writeAt := ptr
		deps.Reloc.Write32Relocated(uint64(ptr), newOff, func(v uint32) { deps.Codec.Write32(data[writeAt:], v) })
	}

	return handled, nil
}

// rewriteGenericStrp is the fallback path for any strp/line_strp/strx
// attribute not already handled as a comp_dir or unit-name special case:
// Observe registers it unchanged, Mutate rewrites strp/line_strp forms in
// place.
func rewriteGenericStrp(deps *Deps, data []byte, ptr int, form abbrev.Form, cu *CU, phase Phase) error {
	_, err := handleStrAttr(deps, data, ptr, form, cu, phase, false)
	return err
}

func readCString(data []byte, off int) (string, int) {
	i := off
	for i < len(data) && data[i] != 0 {
		i++
	}
	return string(data[off:i]), i - off + 1
}

// skipForm advances past one attribute's value per its form, following
// the DWARF spec's per-form fixed/variable widths. It returns the number
// of bytes to advance, or (for DW_FORM_indirect) the form it resolved to
// and indirect=true so the caller re-enters its loop without recursing.
func skipForm(c bitcodec.Codec, data []byte, ptr int, form abbrev.Form, ptrSize int, version uint16) (n int, newForm abbrev.Form, indirect bool, err error) {
	switch form {
	case abbrev.FormRefAddr:
		if version == 2 {
			return ptrSize, 0, false, nil
		}
		return 4, 0, false, nil
	case abbrev.FormFlagPresent, abbrev.FormImplicitConst:
		return 0, 0, false, nil
	case abbrev.FormAddr:
		return ptrSize, 0, false, nil
	case abbrev.FormRef1, abbrev.FormFlag, abbrev.FormData1, abbrev.FormStrx1, abbrev.FormAddrx1:
		return 1, 0, false, nil
	case abbrev.FormRef2, abbrev.FormData2, abbrev.FormStrx2, abbrev.FormAddrx2:
		return 2, 0, false, nil
	case abbrev.FormStrx3, abbrev.FormAddrx3:
		return 3, 0, false, nil
	case abbrev.FormRef4, abbrev.FormData4, abbrev.FormStrx4, abbrev.FormAddrx4, abbrev.FormSecOffset:
		return 4, 0, false, nil
	case abbrev.FormRef8, abbrev.FormData8, abbrev.FormRefSig8, abbrev.FormRefSup8:
		return 8, 0, false, nil
	case abbrev.FormData16:
		return 16, 0, false, nil
	case abbrev.FormRefSup4, abbrev.FormStrpSup:
		return 4, 0, false, nil
	case abbrev.FormSdata:
		_, n, err := bitcodec.ReadSLEB128(data[ptr:])
		return n, 0, false, err
	case abbrev.FormRefUdata, abbrev.FormUdata, abbrev.FormStrx, abbrev.FormLoclistx, abbrev.FormRnglistx, abbrev.FormAddrx:
		_, n, err := bitcodec.ReadULEB128(data[ptr:])
		return n, 0, false, err
	case abbrev.FormStrp, abbrev.FormLineStrp:
		return 4, 0, false, nil
	case abbrev.FormString:
		_, n := readCString(data, ptr)
		return n, 0, false, nil
	case abbrev.FormIndirect:
		v, n, err := bitcodec.ReadULEB128(data[ptr:])
		if err != nil {
			return 0, 0, false, err
		}
		_ = n
		return n, abbrev.Form(v), true, nil
	case abbrev.FormBlock1:
		l := int(data[ptr])
		return 1 + l, 0, false, nil
	case abbrev.FormBlock2:
		l := int(c.Read16(data[ptr:]))
		return 2 + l, 0, false, nil
	case abbrev.FormBlock4:
		l := int(c.Read32(data[ptr:]))
		return 4 + l, 0, false, nil
	case abbrev.FormBlock, abbrev.FormExprloc:
		l, n, err := bitcodec.ReadULEB128(data[ptr:])
		if err != nil {
			return 0, 0, false, err
		}
		return n + int(l), 0, false, nil
	}
	return 0, 0, false, errs.Formatf("unknown DWARF form 0x%x", form)
}
