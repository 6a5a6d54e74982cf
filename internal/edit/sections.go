package edit

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// section is one debug section descriptor: the spec §3 "section
// descriptor" record, plus enough raw ELF bookkeeping (compression type,
// relocation entry byte offsets) to recompress and flush relocations back
// out at the end of the run.
type section struct {
	index int
	name  string

	shType      uint32
	flags       uint64
	addralign   uint64
	allocated   bool
	fileOffset  uint64
	fileSize    uint64 // on-disk size (compressed, if compressed)
	logicalSize uint64 // decompressed size

	compressed  bool
	chType      elf.CompressionType
	chAddralign uint64

	payload []byte // decompressed, mutable
	dirty   bool

	relocKind    reloc.Kind
	relocIdx     *reloc.Index
	relocEntries []relocEntryLoc // parallel to relocIdx.EntryIndex() results
	relocSecName string
}

// relocEntryLoc records where, in the original file, one relocation
// entry's addend field lives (RELA only) so a dirtied record's new addend
// can be flushed back.
type relocEntryLoc struct {
	addendFileOffset int64 // -1 for REL, which has no addend field
	addendSize       int   // 4 or 8
}

// debugCatalog is the set of section names the orchestrator recognizes
// (spec §6 "Input file").
var debugCatalog = map[string]bool{
	".debug_info":        true,
	".debug_abbrev":      true,
	".debug_line":        true,
	".debug_str":         true,
	".debug_line_str":    true,
	".debug_str_offsets": true,
	".debug_macro":       true,
	".debug_types":       true,
}

// chainable names are allowed to appear more than once (COMDAT group
// duplicates, spec §4.J); every other catalog name is expected singleton
// and only its first occurrence is honored.
var chainableNames = map[string]bool{
	".debug_macro": true,
	".debug_types": true,
}

// sections is the orchestrator's live view of the debug sections found in
// one object, keyed by name; chainable names may hold more than one entry.
type sections struct {
	byName map[string][]*section
	all    []*section // every discovered debug section, in file order
}

func (s *sections) first(name string) *section {
	list := s.byName[name]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

func (s *sections) chain(name string) []*section {
	return s.byName[name]
}

// discoverSections scans ef's section list for the debug-section catalog,
// decompresses any SHF_COMPRESSED match, and pairs relocation sections to
// their target by sh_info.
func discoverSections(raw []byte, ef *elf.File, h *ehdr, rawHeaders []rawSectionHeader) (*sections, error) {
	out := &sections{byName: make(map[string][]*section)}

	for i, sec := range ef.Sections {
		if !debugCatalog[sec.Name] {
			continue
		}
		if len(out.byName[sec.Name]) > 0 && !chainableNames[sec.Name] {
			continue // singleton name already matched once
		}

		rsh := rawHeaders[i]
		payload, err := sec.Data()
		if err != nil {
			return nil, errs.Wrap(errs.Resource, err, "reading section %s", sec.Name)
		}

		desc := &section{
			index:       i,
			name:        sec.Name,
			shType:      rsh.shType,
			flags:       rsh.flags,
			addralign:   rsh.addralign,
			allocated:   rsh.flags&uint64(elf.SHF_ALLOC) != 0,
			fileOffset:  rsh.offset,
			fileSize:    rsh.size,
			logicalSize: uint64(len(payload)),
			payload:     append([]byte(nil), payload...),
		}

		if rsh.flags&uint64(elf.SHF_COMPRESSED) != 0 {
			chType, chAlign, err := readCompressionHeader(raw, rsh, h)
			if err != nil {
				return nil, err
			}
			desc.compressed = true
			desc.chType = chType
			desc.chAddralign = chAlign
		}

		out.byName[sec.Name] = append(out.byName[sec.Name], desc)
		out.all = append(out.all, desc)
	}

	if err := pairRelocations(raw, ef, h, rawHeaders, out); err != nil {
		return nil, err
	}

	return out, nil
}

// readCompressionHeader reads just the Elf32_Chdr/Elf64_Chdr at the start
// of a compressed section's on-disk bytes, without touching the
// (already-decompressed-by-the-stdlib) payload.
func readCompressionHeader(raw []byte, rsh rawSectionHeader, h *ehdr) (elf.CompressionType, uint64, error) {
	off := int(rsh.offset)
	switch h.class {
	case elf.ELFCLASS32:
		if off+12 > len(raw) {
			return 0, 0, errs.Formatf("truncated compression header in section at 0x%x", off)
		}
		var chdr elf.Chdr32
		if err := binary.Read(bytes.NewReader(raw[off:off+12]), h.order, &chdr); err != nil {
			return 0, 0, errs.Wrap(errs.Format, err, "reading compression header")
		}
		return elf.CompressionType(chdr.Type), uint64(chdr.Addralign), nil
	case elf.ELFCLASS64:
		if off+24 > len(raw) {
			return 0, 0, errs.Formatf("truncated compression header in section at 0x%x", off)
		}
		var chdr elf.Chdr64
		if err := binary.Read(bytes.NewReader(raw[off:off+24]), h.order, &chdr); err != nil {
			return 0, 0, errs.Wrap(errs.Format, err, "reading compression header")
		}
		return elf.CompressionType(chdr.Type), chdr.Addralign, nil
	}
	return 0, 0, errs.Formatf("unsupported ELF class %v", h.class)
}

// pairRelocations finds every SHT_REL/SHT_RELA section whose sh_info names
// a section already in out, parses its entries, and attaches a
// reloc.Index built from them.
func pairRelocations(raw []byte, ef *elf.File, h *ehdr, rawHeaders []rawSectionHeader, out *sections) error {
	byIndex := make(map[int]*section, len(out.all))
	for _, d := range out.all {
		byIndex[d.index] = d
	}

	symbols, err := ef.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		symbols = nil
	}

	for i, sec := range ef.Sections {
		rsh := rawHeaders[i]
		var kind reloc.Kind
		switch elf.SectionType(rsh.shType) {
		case elf.SHT_REL:
			kind = reloc.REL
		case elf.SHT_RELA:
			kind = reloc.RELA
		default:
			continue
		}

		target, ok := byIndex[int(rsh.info)]
		if !ok {
			continue
		}

		entries, locs, err := parseRelocEntries(raw, h, rsh, kind, symbols)
		if err != nil {
			return errs.Wrap(errs.Format, err, "parsing relocations in %s", sec.Name)
		}

		idx, err := reloc.Build(kind, ef.Machine, entries)
		if err != nil {
			return err
		}

		target.relocKind = kind
		target.relocIdx = idx
		target.relocEntries = locs
		target.relocSecName = sec.Name
	}

	return nil
}

func parseRelocEntries(raw []byte, h *ehdr, rsh rawSectionHeader, kind reloc.Kind, symbols []elf.Symbol) ([]reloc.RawRel, []relocEntryLoc, error) {
	data := raw[rsh.offset : rsh.offset+rsh.size]

	var entrySize, addendSize int
	switch {
	case h.class == elf.ELFCLASS32 && kind == reloc.REL:
		entrySize = 8
	case h.class == elf.ELFCLASS32 && kind == reloc.RELA:
		entrySize = 12
		addendSize = 4
	case h.class == elf.ELFCLASS64 && kind == reloc.REL:
		entrySize = 16
	case h.class == elf.ELFCLASS64 && kind == reloc.RELA:
		entrySize = 24
		addendSize = 8
	}

	n := len(data) / entrySize
	entries := make([]reloc.RawRel, 0, n)
	locs := make([]relocEntryLoc, 0, n)

	symValue := func(symIdx int) int64 {
		if symIdx <= 0 || symIdx-1 >= len(symbols) {
			return 0
		}
		return int64(symbols[symIdx-1].Value)
	}

	for i := 0; i < n; i++ {
		entryOff := int(rsh.offset) + i*entrySize
		entryData := raw[entryOff : entryOff+entrySize]

		var offset uint64
		var info uint64
		var addend int64
		addendFileOffset := int64(-1)

		if h.class == elf.ELFCLASS32 {
			offset = uint64(h.order.Uint32(entryData[0:4]))
			info = uint64(h.order.Uint32(entryData[4:8]))
			if kind == reloc.RELA {
				addend = int64(int32(h.order.Uint32(entryData[8:12])))
				addendFileOffset = int64(entryOff + 8)
			}
		} else {
			offset = h.order.Uint64(entryData[0:8])
			info = h.order.Uint64(entryData[8:16])
			if kind == reloc.RELA {
				addend = int64(h.order.Uint64(entryData[16:24]))
				addendFileOffset = int64(entryOff + 16)
			}
		}

		var symIdx int
		var relType uint32
		if h.class == elf.ELFCLASS32 {
			symIdx = int(info >> 8)
			relType = uint32(info & 0xff)
		} else {
			symIdx = int(info >> 32)
			relType = uint32(info & 0xffffffff)
		}

		entries = append(entries, reloc.RawRel{
			Offset:   offset,
			Type:     relType,
			SymValue: symValue(symIdx),
			Addend:   addend,
		})
		locs = append(locs, relocEntryLoc{addendFileOffset: addendFileOffset, addendSize: addendSize})
	}

	return entries, locs, nil
}

// flushRelocations writes every dirtied RELA record's new addend back into
// raw's relocation-entry bytes (spec §4.J: "flush RELA data for every
// touched section"). REL addends live inline in the section payload and
// were already rewritten there by Write32Relocated's write-back callback,
// so there is nothing further to flush for them.
func flushRelocations(raw []byte, h *ehdr, secs *sections) {
	for _, d := range secs.all {
		if d.relocIdx == nil || !d.relocIdx.Dirty() {
			continue
		}
		for _, i := range d.relocIdx.DirtyRecords() {
			entryIdx := d.relocIdx.EntryIndex(i)
			if entryIdx < 0 || entryIdx >= len(d.relocEntries) {
				continue
			}
			loc := d.relocEntries[entryIdx]
			if loc.addendFileOffset < 0 {
				continue
			}
			addend := d.relocIdx.FlushedAddend(i)
			off := int(loc.addendFileOffset)
			switch loc.addendSize {
			case 4:
				h.order.PutUint32(raw[off:off+4], uint32(int32(addend)))
			case 8:
				h.order.PutUint64(raw[off:off+8], uint64(addend))
			}
		}
	}
}
