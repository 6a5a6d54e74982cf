// Package linetable implements the line-table registry (spec §4.F): the
// per-offset catalog of .debug_line tables that the DIE walker populates
// via DW_AT_stmt_list references and the orchestrator later rewrites and
// re-emits as a single new .debug_line section.
package linetable

import (
	"sort"

	"github.com/Manu343726/debugedit/internal/abbrev"
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/pathutil"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// Header holds the fields of a .debug_line unit prologue, parsed once per
// table and retained for re-emission.
type Header struct {
	UnitLength     uint32
	Version        uint16
	AddressSize    uint8 // version >= 5 only
	SegSelSize     uint8 // version >= 5 only
	HeaderLength   uint32
	MinInstrLen    uint8
	MaxOpPerInstr  uint8 // version >= 4 only; defaults to 1 when absent
	DefaultIsStmt  uint8
	LineBase       int8
	LineRange      uint8
	OpcodeBase     uint8
	OpcodeLengths  []uint8
	// PrologueEnd is the offset (relative to the unit start) where the
	// opcode-length table ends and the version-specific directory/file
	// tables begin.
	PrologueEnd int
	// UnitEnd is the offset (relative to the unit start) one past the
	// unit's last byte, derived from UnitLength.
	UnitEnd int
}

// ParseHeader reads a .debug_line unit prologue starting at data[off:].
// cuPtrSize is the enclosing CU's address size, required to cross-check
// against a v5 table's own address_size field.
func ParseHeader(codec bitcodec.Codec, data []byte, off int, cuPtrSize int) (*Header, error) {
	if off < 0 || off+4 > len(data) {
		return nil, errs.Formatf("invalid .debug_line offset 0x%x", off)
	}

	h := &Header{}
	cursor := off

	h.UnitLength = codec.Read32(data[cursor:])
	if h.UnitLength == 0xffffffff {
		return nil, errs.Formatf("64-bit DWARF not supported in .debug_line at 0x%x", off)
	}
	cursor += 4
	unitEnd := cursor + int(h.UnitLength)
	if unitEnd > len(data) {
		return nil, errs.Formatf(".debug_line unit at 0x%x does not fit into section", off)
	}
	h.UnitEnd = unitEnd

	if cursor+2 > unitEnd {
		return nil, errs.Formatf("truncated .debug_line unit at 0x%x", off)
	}
	h.Version = codec.Read16(data[cursor:])
	if h.Version < 2 || h.Version > 5 {
		return nil, errs.Formatf("unhandled .debug_line version %d at 0x%x", h.Version, off)
	}
	cursor += 2

	if h.Version >= 5 {
		if cursor+2 > unitEnd {
			return nil, errs.Formatf("truncated .debug_line v5 header at 0x%x", off)
		}
		h.AddressSize = data[cursor]
		cursor++
		if cuPtrSize != 0 && int(h.AddressSize) != cuPtrSize {
			return nil, errs.Constraintf(".debug_line address size %d differs from .debug_info %d", h.AddressSize, cuPtrSize)
		}
		h.SegSelSize = data[cursor]
		cursor++
	}

	if cursor+4 > unitEnd {
		return nil, errs.Formatf("truncated .debug_line header_length at 0x%x", off)
	}
	h.HeaderLength = codec.Read32(data[cursor:])
	cursor += 4
	prologueEnd := cursor + int(h.HeaderLength)
	if prologueEnd > unitEnd {
		return nil, errs.Formatf(".debug_line prologue at 0x%x does not fit into unit", off)
	}

	if cursor >= unitEnd {
		return nil, errs.Formatf("truncated .debug_line header at 0x%x", off)
	}
	h.MinInstrLen = data[cursor]
	cursor++

	h.MaxOpPerInstr = 1
	if h.Version >= 4 {
		if cursor >= unitEnd {
			return nil, errs.Formatf("truncated .debug_line header at 0x%x", off)
		}
		h.MaxOpPerInstr = data[cursor]
		cursor++
	}

	if cursor+3 > unitEnd {
		return nil, errs.Formatf("truncated .debug_line header at 0x%x", off)
	}
	h.DefaultIsStmt = data[cursor]
	cursor++
	h.LineBase = int8(data[cursor])
	cursor++
	h.LineRange = data[cursor]
	cursor++

	if cursor >= unitEnd {
		return nil, errs.Formatf("truncated .debug_line header at 0x%x", off)
	}
	h.OpcodeBase = data[cursor]
	cursor++

	nOpcodes := int(h.OpcodeBase) - 1
	if nOpcodes < 0 || cursor+nOpcodes > unitEnd {
		return nil, errs.Formatf(".debug_line opcode table at 0x%x does not fit into unit", off)
	}
	h.OpcodeLengths = append([]uint8(nil), data[cursor:cursor+nOpcodes]...)
	cursor += nOpcodes

	h.PrologueEnd = cursor
	return h, nil
}

// Table is one registered .debug_line unit: its parsed header, planned
// size delta and replacement flags, and the old/new offset pair the
// orchestrator needs to translate every DW_AT_stmt_list reference.
type Table struct {
	Header *Header

	OldOffset int
	NewOffset int
	SizeDiff  int

	ReplaceDirs  bool
	ReplaceFiles bool

	// CUPtrSize is recorded at creation time so PlanV2ToV4 and the v5
	// entry-format walk don't need the caller to thread it through again.
	CUPtrSize int

	// V5PathSites is populated by WalkV5EntryFormats for a version-5 table:
	// every DW_LNCT_path site found in its directory/file_name entry lists.
	// EmitSection consults it to patch DW_FORM_strp/DW_FORM_line_strp
	// fields to their pool's finalized offset.
	V5PathSites []V5PathSite
}

// Registry is the collection of Tables discovered while walking
// DW_AT_stmt_list attributes across every CU. Lookups during phase 0 are
// a linear scan (stmt_lists are typically already near-sorted and the
// table count is small); Finalize sorts once for the binary search phase
// 1 needs after emission.
type Registry struct {
	tables []*Table
	sorted bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the Table for a .debug_line offset, parsing its
// header the first time it is seen. The second return value reports
// whether this call created a new entry.
func (r *Registry) GetOrCreate(codec bitcodec.Codec, data []byte, off int, cuPtrSize int) (*Table, bool, error) {
	for _, t := range r.tables {
		if t.OldOffset == off {
			return t, false, nil
		}
	}

	h, err := ParseHeader(codec, data, off, cuPtrSize)
	if err != nil {
		return nil, false, err
	}

	t := &Table{Header: h, OldOffset: off, NewOffset: off, CUPtrSize: cuPtrSize}
	r.tables = append(r.tables, t)
	r.sorted = false
	return t, true, nil
}

// Tables returns every registered table, in registration order.
func (r *Registry) Tables() []*Table {
	return r.tables
}

// Finalize sorts the registry by old offset, in preparation for
// OffsetLookup's binary search. Called once after every CU has been
// walked and every table's size delta has been planned.
func (r *Registry) Finalize() {
	sort.Slice(r.tables, func(i, j int) bool { return r.tables[i].OldOffset < r.tables[j].OldOffset })
	r.sorted = true
}

// OffsetLookup returns the new offset for a table that was registered at
// oldOff. Requires Finalize to have run.
func (r *Registry) OffsetLookup(oldOff int) (int, error) {
	if !r.sorted {
		return 0, errs.Resourcef("linetable.OffsetLookup called before Finalize")
	}
	i := sort.Search(len(r.tables), func(i int) bool { return r.tables[i].OldOffset >= oldOff })
	if i < len(r.tables) && r.tables[i].OldOffset == oldOff {
		return r.tables[i].NewOffset, nil
	}
	return 0, errs.Formatf("no .debug_line table registered at offset 0x%x", oldOff)
}

// SourceSink receives every source path the v2-v4 file table resolves,
// already stripped of base-dir/dest-dir for listing (spec §4.F/§4.L). The
// DIE walker's sourcelist.Sink implements this narrow interface.
type SourceSink interface {
	WriteFile(path string) error
}

// PlanV2ToV4 walks the directory table then the file table of a v2–v4
// line-table unit starting right after the prologue (Header.PrologueEnd),
// accumulating size delta and replacement flags on t, and optionally
// emitting every resolved source path through sink. baseDir/destDir may be
// empty, disabling path rewriting (replacement flags then stay false and
// size delta stays zero, matching the C original's "if (base_dir &&
// dest_dir)" guard).
//
// Grounded directly on read_dwarf4_line in
// original_source/tools/debugedit.c; the dir/file table wire format did
// not change between DWARF versions 2 and 4.
func PlanV2ToV4(t *Table, data []byte, compDir, baseDir, destDir string, sink SourceSink) error {
	cursor := t.OldOffset + t.Header.PrologueEnd
	end := t.OldOffset + t.Header.UnitEnd

	dirs := []string{"."}
	for {
		if cursor >= end {
			return errs.Formatf(".debug_line dir table runs past unit end")
		}
		if data[cursor] == 0 {
			cursor++
			break
		}
		s, n := readCString(data, cursor)
		if baseDir != "" && destDir != "" {
			if tail, ok := pathutil.SkipPrefix(s, baseDir); ok {
				oldSize := len(s) + 1
				newSize := len(destDir) + 1
				if tail != "" {
					newSize += 1 + len(tail)
				}
				t.SizeDiff += newSize - oldSize
				t.ReplaceDirs = true
			}
		}
		dirs = append(dirs, s)
		cursor += n
	}

	for {
		if cursor >= end {
			return errs.Formatf(".debug_line file table runs past unit end")
		}
		if data[cursor] == 0 {
			cursor++
			break
		}
		file, n := readCString(data, cursor)
		cursor += n

		dirIdx, n, err := bitcodec.ReadULEB128(data[cursor:])
		if err != nil {
			return err
		}
		cursor += n
		if int(dirIdx) >= len(dirs) {
			return errs.Formatf("wrong directory table index %d in .debug_line", dirIdx)
		}

		if baseDir != "" && destDir != "" {
			if tail, ok := pathutil.SkipPrefix(file, baseDir); ok {
				oldSize := len(file) + 1
				newSize := len(destDir) + 1
				if tail != "" {
					newSize += 1 + len(tail)
				}
				t.SizeDiff += newSize - oldSize
				t.ReplaceFiles = true
			}
		}

		if sink != nil {
			full := resolveSourcePath(compDir, dirs[dirIdx], file)
			full = pathutil.Canonicalize(full)
			listed := full
			if baseDir != "" {
				if p, ok := pathutil.SkipPrefix(full, baseDir); ok {
					listed = p
				} else if destDir != "" {
					if p, ok := pathutil.SkipPrefix(full, destDir); ok {
						listed = p
					}
				}
			}
			if listed != "" {
				if err := sink.WriteFile(listed); err != nil {
					return err
				}
			}
		}

		// mtime, length: ULEB128, copied verbatim on emission, discarded here.
		_, n, err = bitcodec.ReadULEB128(data[cursor:])
		if err != nil {
			return err
		}
		cursor += n
		_, n, err = bitcodec.ReadULEB128(data[cursor:])
		if err != nil {
			return err
		}
		cursor += n
	}

	return nil
}

func resolveSourcePath(compDir, dir, file string) string {
	if file != "" && file[0] == '/' {
		return file
	}
	if dir != "" && dir[0] == '/' {
		return pathutil.Join(dir, file)
	}
	return pathutil.Join(compDir, dir, file)
}

func readCString(data []byte, off int) (string, int) {
	i := off
	for i < len(data) && data[i] != 0 {
		i++
	}
	return string(data[off:i]), i - off + 1
}

// DW_LNCT_* content-type codes (DWARF5 §6.2.4.1), the subset this walker
// needs to recognize to locate DW_LNCT_path fields.
const (
	lnctPath = 0x1
)

// V5PathSite identifies one DW_LNCT_path field inside a v5 table's
// directory_entry_format or file_name_entry_format entry list: its
// absolute byte offset (relative to the section, like Table.OldOffset)
// and the form it was encoded with.
type V5PathSite struct {
	Offset int
	Form   abbrev.Form
}

type formatPair struct {
	contentType uint32
	form        abbrev.Form
}

func readFormatDescriptors(data []byte, cursor int) ([]formatPair, int, error) {
	if cursor >= len(data) {
		return nil, 0, errs.Formatf("truncated v5 entry-format descriptor count at 0x%x", cursor)
	}
	count := int(data[cursor])
	cursor++

	pairs := make([]formatPair, 0, count)
	for i := 0; i < count; i++ {
		ct, n, err := bitcodec.ReadULEB128(data[cursor:])
		if err != nil {
			return nil, 0, err
		}
		cursor += n
		f, n, err := bitcodec.ReadULEB128(data[cursor:])
		if err != nil {
			return nil, 0, err
		}
		cursor += n
		pairs = append(pairs, formatPair{contentType: ct, form: abbrev.Form(f)})
	}
	return pairs, cursor, nil
}

// isV5PathForm reports whether form is one this walker knows how to
// register/rewrite through a string pool when paired with DW_LNCT_path.
// DW_FORM_string entries are inline in the table itself (handled, for
// v2-v4, by PlanV2ToV4/rewriteDirFileTables already) and need no pool.
func isV5PathForm(form abbrev.Form) bool {
	switch form {
	case abbrev.FormStrp, abbrev.FormLineStrp, abbrev.FormStrx,
		abbrev.FormStrx1, abbrev.FormStrx2, abbrev.FormStrx3, abbrev.FormStrx4:
		return true
	}
	return false
}

// v5FieldSize returns the number of bytes form occupies at data[off:],
// reading variable-width forms (ULEB128 indices, block lengths) to
// determine it. Only the forms DWARF5 permits in a line-table
// entry-format descriptor are handled.
func v5FieldSize(data []byte, off int, form abbrev.Form) (int, error) {
	switch form {
	case abbrev.FormString:
		_, n := readCString(data, off)
		return n, nil
	case abbrev.FormStrp, abbrev.FormLineStrp, abbrev.FormStrpSup, abbrev.FormData4, abbrev.FormSecOffset:
		return 4, nil
	case abbrev.FormData1, abbrev.FormStrx1:
		return 1, nil
	case abbrev.FormData2, abbrev.FormStrx2:
		return 2, nil
	case abbrev.FormStrx3:
		return 3, nil
	case abbrev.FormData8:
		return 8, nil
	case abbrev.FormData16:
		return 16, nil
	case abbrev.FormStrx, abbrev.FormUdata:
		_, n, err := bitcodec.ReadULEB128(data[off:])
		return n, err
	case abbrev.FormBlock:
		l, n, err := bitcodec.ReadULEB128(data[off:])
		if err != nil {
			return 0, err
		}
		return n + int(l), nil
	}
	return 0, errs.Formatf("unhandled v5 line-table entry form 0x%x", form)
}

// walkV5EntryList parses one entry-format-descriptor-prefixed list (the
// directory list or the file_name list share this exact shape) starting
// at cursor, returning every DW_LNCT_path site found plus the cursor
// position just past the list.
func walkV5EntryList(data []byte, cursor, end int) ([]V5PathSite, int, error) {
	pairs, cursor, err := readFormatDescriptors(data, cursor)
	if err != nil {
		return nil, 0, err
	}

	count, n, err := bitcodec.ReadULEB128(data[cursor:])
	if err != nil {
		return nil, 0, err
	}
	cursor += n

	var sites []V5PathSite
	for i := uint32(0); i < count; i++ {
		for _, p := range pairs {
			if cursor >= end {
				return nil, 0, errs.Formatf("v5 line-table entry runs past unit end")
			}
			if p.contentType == lnctPath && isV5PathForm(p.form) {
				sites = append(sites, V5PathSite{Offset: cursor, Form: p.form})
			}
			sz, err := v5FieldSize(data, cursor, p.form)
			if err != nil {
				return nil, 0, err
			}
			cursor += sz
		}
	}
	return sites, cursor, nil
}

// WalkV5EntryFormats parses the directory_entry_format/file_name_entry_format
// descriptors and entry lists of a v5 table (Header.Version == 5), right
// after the opcode-length table (Header.PrologueEnd), and returns every
// DW_LNCT_path site encountered. It never mutates data; the caller
// registers (phase 0) or rewrites (phase 1, via EmitSection) each site
// through the owning string pool. Returns nil for a table whose version
// is not 5.
//
// Grounded on read_dwarf5_dirs/read_dwarf5_files in
// original_source/tools/debugedit.c, generalized from that function's
// fixed DW_FORM_line_strp/DW_FORM_udata assumption to the full set of
// forms DWARF5 permits for an entry-format descriptor (spec §4.F: "for
// version 5 ... phase 1 can walk the entry-format descriptors").
func WalkV5EntryFormats(data []byte, t *Table) ([]V5PathSite, error) {
	if t.Header.Version != 5 {
		return nil, nil
	}

	cursor := t.OldOffset + t.Header.PrologueEnd
	end := t.OldOffset + t.Header.UnitEnd

	dirSites, cursor, err := walkV5EntryList(data, cursor, end)
	if err != nil {
		return nil, err
	}
	fileSites, _, err := walkV5EntryList(data, cursor, end)
	if err != nil {
		return nil, err
	}
	return append(dirSites, fileSites...), nil
}

// patchV5PathSites rewrites the DW_FORM_strp/DW_FORM_line_strp fields a
// v5 table's entry-format walk found to the offset their owning pool
// finalized. unit is the (already copied or re-emitted) per-table byte
// slice EmitSection is about to append; site offsets are relative to
// t.OldOffset, matching unit's layout either way. DW_FORM_strx sites are
// skipped: only their .debug_str_offsets slot changes, via component I.
func patchV5PathSites(codec bitcodec.Codec, unit []byte, t *Table, strPool, lineStrPool *strpool.Pool) error {
	for _, site := range t.V5PathSites {
		rel := site.Offset - t.OldOffset
		if rel < 0 || rel+4 > len(unit) {
			return errs.Formatf("v5 line-table path site at 0x%x out of bounds", site.Offset)
		}

		var pool *strpool.Pool
		switch site.Form {
		case abbrev.FormStrp:
			pool = strPool
		case abbrev.FormLineStrp:
			pool = lineStrPool
		default:
			continue
		}
		if pool == nil {
			continue
		}

		origOff := codec.Read32(unit[rel:])
		newOff, _, err := pool.Lookup(origOff, false)
		if err != nil {
			return err
		}
		codec.Write32(unit[rel:], newOff)
	}
	return nil
}

// EmitSection rebuilds a complete new .debug_line section payload from
// orig and the registry's planned tables: unreplaced tables are copied
// verbatim, replaced ones get a corrected unit_length/header_length and
// their dir/file tables rewritten through rewriteDirFileTables. Either way, a
// v5 table's recorded DW_LNCT_path sites (WalkV5EntryFormats) are then
// patched to strPool/lineStrPool's finalized offsets — both pools must
// already be finalized by the time this is called. Tables are emitted in
// old-offset order; NewOffset is updated on every Table to the position
// its header now starts at, which is what phase 1 writes back into
// DW_AT_stmt_list.
func (r *Registry) EmitSection(codec bitcodec.Codec, orig []byte, baseDir, destDir string, strPool, lineStrPool *strpool.Pool) ([]byte, error) {
	r.Finalize()

	totalNew := len(orig)
	for _, t := range r.tables {
		totalNew += t.SizeDiff
	}

	out := make([]byte, 0, totalNew)
	cursor := 0

	for _, t := range r.tables {
		if t.OldOffset > cursor {
			out = append(out, orig[cursor:t.OldOffset]...)
		}

		t.NewOffset = len(out)

		var unit []byte
		if !t.ReplaceDirs && !t.ReplaceFiles {
			unit = append([]byte(nil), orig[t.OldOffset:t.OldOffset+4+int(t.Header.UnitLength)]...)
		} else {
			emitted, err := emitRewrittenTable(codec, t, orig, baseDir, destDir)
			if err != nil {
				return nil, err
			}
			unit = emitted
		}

		if len(t.V5PathSites) > 0 {
			if err := patchV5PathSites(codec, unit, t, strPool, lineStrPool); err != nil {
				return nil, err
			}
		}

		out = append(out, unit...)
		cursor = t.OldOffset + 4 + int(t.Header.UnitLength)
	}

	if cursor < len(orig) {
		out = append(out, orig[cursor:]...)
	}

	return out, nil
}

func emitRewrittenTable(codec bitcodec.Codec, t *Table, orig []byte, baseDir, destDir string) ([]byte, error) {
	h := t.Header
	newUnitLength := int(h.UnitLength) + t.SizeDiff
	newHeaderLength := int(h.HeaderLength) + t.SizeDiff

	buf := make([]byte, 0, 4+newUnitLength)
	var tmp4 [4]byte
	codec.Write32(tmp4[:], uint32(newUnitLength))
	buf = append(buf, tmp4[:]...)

	var tmp2 [2]byte
	codec.Write16(tmp2[:], h.Version)
	buf = append(buf, tmp2[:]...)

	if h.Version >= 5 {
		buf = append(buf, h.AddressSize, h.SegSelSize)
	}

	codec.Write32(tmp4[:], uint32(newHeaderLength))
	buf = append(buf, tmp4[:]...)

	buf = append(buf, h.MinInstrLen)
	if h.Version >= 4 {
		buf = append(buf, h.MaxOpPerInstr)
	}
	buf = append(buf, h.DefaultIsStmt, byte(h.LineBase), h.LineRange, h.OpcodeBase)
	buf = append(buf, h.OpcodeLengths...)

	rest, err := rewriteDirFileTables(orig, t.OldOffset+h.PrologueEnd, t.OldOffset+h.UnitEnd, baseDir, destDir)
	if err != nil {
		return nil, err
	}
	buf = append(buf, rest...)
	return buf, nil
}

// rewriteDirFileTables re-encodes the v2-v4 dir/file tables between
// [start, end), replacing any path that has baseDir as a prefix with
// destDir [+ "/" + tail], and copies the rest of the unit (the opcode
// stream) verbatim.
func rewriteDirFileTables(data []byte, start, end int, baseDir, destDir string) ([]byte, error) {
	var out []byte
	cursor := start

	for {
		if cursor >= end {
			return nil, errs.Formatf(".debug_line dir table runs past unit end")
		}
		if data[cursor] == 0 {
			out = append(out, 0)
			cursor++
			break
		}
		s, n := readCString(data, cursor)
		out = append(out, rewritePath(s, baseDir, destDir)...)
		out = append(out, 0)
		cursor += n
	}

	for {
		if cursor >= end {
			return nil, errs.Formatf(".debug_line file table runs past unit end")
		}
		if data[cursor] == 0 {
			out = append(out, 0)
			cursor++
			break
		}
		file, n := readCString(data, cursor)
		out = append(out, rewritePath(file, baseDir, destDir)...)
		out = append(out, 0)
		cursor += n

		tupleStart := cursor
		for i := 0; i < 3; i++ {
			_, n, err := bitcodec.ReadULEB128(data[cursor:])
			if err != nil {
				return nil, err
			}
			cursor += n
		}
		out = append(out, data[tupleStart:cursor]...)
	}

	out = append(out, data[cursor:end]...)
	return out, nil
}

func rewritePath(s, baseDir, destDir string) string {
	if baseDir == "" || destDir == "" {
		return s
	}
	tail, ok := pathutil.SkipPrefix(s, baseDir)
	if !ok {
		return s
	}
	if tail == "" {
		return destDir
	}
	return pathutil.Join(destDir, tail)
}
