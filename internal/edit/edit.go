// Package edit implements the orchestrator (spec §4.J): it discovers an
// object file's debug sections, runs the two-phase DIE/macro/str-offsets
// walkers over them in the required order, re-emits any section whose size
// changed, reflows the unallocated section layout, optionally recomputes
// the GNU build-ID note, and hands back the complete rewritten file image.
//
// Every lower-level component (bitcodec, reloc, abbrev, diewalk, linetable,
// strpool, stroffsets, macro, buildid, sourcelist) is a pure function of
// the bytes and dependencies it is given; this package is the only one
// that knows how they compose into one run over one ELF file.
package edit

import (
	"bytes"
	"debug/elf"

	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/diewalk"
	"github.com/Manu343726/debugedit/internal/linetable"
	"github.com/Manu343726/debugedit/internal/macro"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/stroffsets"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// SourceSink receives every directory/file path resolved under BaseDir, the
// union of diewalk's and linetable's narrow sink interfaces; sourcelist.Sink
// satisfies it directly.
type SourceSink interface {
	WriteDir(path string) error
	WriteFile(path string) error
}

// Config carries every user-facing knob spec §6 names.
type Config struct {
	BaseDir string
	DestDir string

	Sink SourceSink // nil disables source-path listing

	RecomputeBuildID   bool
	BuildIDSeed        string
	NoRecomputeBuildID bool // print the existing note instead of rehashing

	// WarnOverflow is forwarded to diewalk for DW_FORM_string comp_dir
	// replacements that don't fit in their original byte width.
	WarnOverflow func(cuOffset int64, original, attempted string)
	// WarnDummyStrOffset is called whenever a .debug_str_offsets entry
	// could not be traced to any DIE attribute and was pointed at the pool's
	// dummy placeholder instead.
	WarnDummyStrOffset func(tableOffset int64, entryIndex int, origOffset uint32)
}

// Result is everything RewriteFile produces.
type Result struct {
	Data       []byte
	BuildIDHex string // empty unless Config.RecomputeBuildID
}

// RewriteFile runs the complete rewrite over one in-memory ELF file image.
func RewriteFile(raw []byte, cfg Config) (*Result, error) {
	ef, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Wrap(errs.Format, err, "parsing ELF file")
	}

	h, err := readEhdr(raw, ef.Class, ef.ByteOrder)
	if err != nil {
		return nil, err
	}
	rawHeaders, err := readSectionHeaders(raw, h)
	if err != nil {
		return nil, err
	}
	secs, err := discoverSections(raw, ef, h, rawHeaders)
	if err != nil {
		return nil, err
	}

	codec := bitcodec.New(ef.ByteOrder)

	infoSec := secs.first(".debug_info")
	if infoSec == nil {
		return nil, errs.Constraintf("object file has no .debug_info section")
	}
	abbrevSec := secs.first(".debug_abbrev")
	if abbrevSec == nil {
		return nil, errs.Constraintf("object file has no .debug_abbrev section")
	}
	strSec := secs.first(".debug_str")
	lineStrSec := secs.first(".debug_line_str")
	lineSec := secs.first(".debug_line")
	strOffsetsSec := secs.first(".debug_str_offsets")
	typeChain := secs.chain(".debug_types")
	macroChain := secs.chain(".debug_macro")

	var strPool, lineStrPool *strpool.Pool
	if strSec != nil {
		strPool = strpool.New(strSec.payload, cfg.BaseDir, cfg.DestDir)
	}
	if lineStrSec != nil {
		lineStrPool = strpool.New(lineStrSec.payload, cfg.BaseDir, cfg.DestDir)
	}

	var strOffResolver *strOffsetsResolver
	if strOffsetsSec != nil {
		strOffResolver = &strOffsetsResolver{codec: codec, data: strOffsetsSec.payload, idx: idxOrEmpty(strOffsetsSec)}
	}

	lineRegistry := linetable.NewRegistry()

	baseDeps := func(sec *section) *diewalk.Deps {
		d := &diewalk.Deps{
			Codec:         codec,
			AbbrevSection: abbrevSec.payload,
			Reloc:         idxOrEmpty(sec),
			StrPool:       strPool,
			LineStrPool:   lineStrPool,
			BaseDir:       cfg.BaseDir,
			DestDir:       cfg.DestDir,
			Sink:          cfg.Sink,
			LineSink:      cfg.Sink,
			WarnOverflow:  cfg.WarnOverflow,
		}
		if strSec != nil {
			d.StrData = strSec.payload
		}
		if lineStrSec != nil {
			d.LineStrData = lineStrSec.payload
		}
		if lineSec != nil {
			d.LineData = lineSec.payload
			d.LineRegistry = lineRegistry
		}
		if strOffResolver != nil {
			d.StrOffsets = strOffResolver
		}
		return d
	}

	// Phase 0: .debug_info, then every .debug_types chain link (spec §5).
	infoDeps := baseDeps(infoSec)
	infoCUs, err := diewalk.Walk(infoDeps, infoSec.payload, diewalk.Observe, nil)
	if err != nil {
		return nil, err
	}

	typeDeps := make([]*diewalk.Deps, len(typeChain))
	typeCUs := make([][]*diewalk.CU, len(typeChain))
	for i, tsec := range typeChain {
		typeDeps[i] = baseDeps(tsec)
		typeCUs[i], err = diewalk.Walk(typeDeps[i], tsec.payload, diewalk.Observe, nil)
		if err != nil {
			return nil, err
		}
	}

	allCUs := append([]*diewalk.CU(nil), infoCUs...)
	for _, cus := range typeCUs {
		allCUs = append(allCUs, cus...)
	}

	// Pools must be finalized before EmitSection, which needs their
	// finalized offsets to patch a v5 table's DW_LNCT_path sites (spec
	// §4.F); finalizing after every Observe pass has completed is what
	// guarantees every registration (DIE attributes, v5 line-table paths)
	// is already in, deduplication-wise, before the buffer is built.
	if strOffsetsSec != nil {
		if strPool != nil {
			if err := strPool.EnsureDummy(); err != nil {
				return nil, err
			}
		}
		if lineStrPool != nil {
			if err := lineStrPool.EnsureDummy(); err != nil {
				return nil, err
			}
		}
	}

	if strPool != nil {
		newStr, err := strPool.Finalize()
		if err != nil {
			return nil, err
		}
		if len(newStr) != len(strSec.payload) {
			strSec.dirty = true
		}
		strSec.payload = newStr
	}
	if lineStrPool != nil {
		newLineStr, err := lineStrPool.Finalize()
		if err != nil {
			return nil, err
		}
		if len(newLineStr) != len(lineStrSec.payload) {
			lineStrSec.dirty = true
		}
		lineStrSec.payload = newLineStr
	}

	needStmtUpdate := false
	if len(lineRegistry.Tables()) > 0 {
		needStmtUpdate = true
		newLineData, err := lineRegistry.EmitSection(codec, lineSec.payload, cfg.BaseDir, cfg.DestDir, strPool, lineStrPool)
		if err != nil {
			return nil, err
		}
		if len(newLineData) != len(lineSec.payload) {
			adjustLineRelocations(lineSec, lineRegistry)
		}
		lineSec.payload = newLineData
		lineSec.dirty = true
	}
	infoDeps.NeedStmtUpdate = needStmtUpdate
	for _, d := range typeDeps {
		d.NeedStmtUpdate = needStmtUpdate
	}
	lineRegistry.Finalize() // idempotent; ensures OffsetLookup works even with zero tables

	macroHooks := macro.Hooks{
		ResolveStrx: func(subsectionOffset int, strxIndex uint32) (uint32, error) {
			cu := findCUByMacrosOffset(allCUs, subsectionOffset)
			if cu == nil {
				return 0, errs.Formatf("no CU found for .debug_macro subsection at 0x%x", subsectionOffset)
			}
			if strOffResolver == nil {
				return 0, errs.Resourcef(".debug_macro strx operand present but no .debug_str_offsets section exists")
			}
			return strOffResolver.Resolve(cu.StrOffsetsBase, strxIndex)
		},
		TranslateLineOffset: func(old int) (int, error) {
			return lineRegistry.OffsetLookup(old)
		},
	}

	for _, msec := range macroChain {
		if err := macro.Walk(codec, msec.payload, idxOrEmpty(msec), strPool, macroHooks, 0); err != nil {
			return nil, err
		}
	}

	// Phase 1, symmetric order (spec §5).
	if _, err := diewalk.Walk(infoDeps, infoSec.payload, diewalk.Mutate, infoCUs); err != nil {
		return nil, err
	}
	for i, tsec := range typeChain {
		if _, err := diewalk.Walk(typeDeps[i], tsec.payload, diewalk.Mutate, typeCUs[i]); err != nil {
			return nil, err
		}
	}

	if strOffsetsSec != nil && strPool != nil {
		if err := stroffsets.Rewrite(codec, strOffsetsSec.payload, idxOrEmpty(strOffsetsSec), strPool, stroffsets.DummyWarner(cfg.WarnDummyStrOffset)); err != nil {
			return nil, err
		}
	}

	for _, msec := range macroChain {
		if err := macro.Walk(codec, msec.payload, idxOrEmpty(msec), strPool, macroHooks, 1); err != nil {
			return nil, err
		}
	}

	flushRelocations(raw, h, secs)

	final, finalHeaders, err := reflow(raw, h, rawHeaders, secs)
	if err != nil {
		return nil, err
	}

	result := &Result{Data: final}

	if cfg.RecomputeBuildID {
		if cfg.NoRecomputeBuildID {
			loc, err := findBuildIDNote(final, h, finalHeaders)
			if err != nil {
				return nil, err
			}
			result.BuildIDHex = hexLower(final[loc.descOffset : loc.descOffset+loc.descSize])
		} else {
			hexStr, err := computeBuildID(final, h, finalHeaders, cfg.BuildIDSeed)
			if err != nil {
				return nil, err
			}
			result.BuildIDHex = hexStr
		}
	}

	return result, nil
}

func idxOrEmpty(sec *section) *reloc.Index {
	if sec != nil && sec.relocIdx != nil {
		return sec.relocIdx
	}
	idx, _ := reloc.Build(reloc.REL, 0, nil)
	return idx
}

func findCUByMacrosOffset(cus []*diewalk.CU, subsectionOffset int) *diewalk.CU {
	for _, cu := range cus {
		if cu.HasMacros && int(cu.MacrosOffset) == subsectionOffset {
			return cu
		}
	}
	if len(cus) > 0 {
		return cus[0]
	}
	return nil
}

// adjustLineRelocations shifts the offset of every relocation record in
// lineSec's index by the distance its enclosing table moved plus that
// table's size delta (spec §4.J).
func adjustLineRelocations(lineSec *section, reg *linetable.Registry) {
	if lineSec.relocIdx == nil {
		return
	}
	tables := reg.Tables()
	for i := range lineSec.relocIdx.Records {
		rec := &lineSec.relocIdx.Records[i]
		for _, t := range tables {
			oldEnd := t.OldOffset + 4 + int(t.Header.UnitLength)
			if int(rec.Offset) >= t.OldOffset && int(rec.Offset) < oldEnd {
				rec.Offset = uint64(int(rec.Offset) + (t.NewOffset - t.OldOffset) + t.SizeDiff)
				break
			}
		}
	}
}

func hexLower(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0xf]
	}
	return string(out)
}
