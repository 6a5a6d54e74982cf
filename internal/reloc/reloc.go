// Package reloc implements the relocation-aware read/write micro-pass
// (spec §4.D): a per-section sorted index of relocation records that lets
// the DIE/macro/str-offsets walkers read and write 32-bit values through
// whichever relocation kind (REL or RELA) the object format uses, without
// caring which one it is.
//
// The REL/RELA split itself, and the "effective offset target" framing of
// addend, is grounded on the teacher's pkg/hw/cpu/llvm relocation handling
// (binaryfileparser.go's parseRelocations combines a stored instruction
// immediate with symbol resolution to get a target address) generalized
// from Cucaracha's ARM-style Lo/Hi pairs to the flat 32-bit absolute
// relocations listed in spec §6.
package reloc

import (
	"debug/elf"
	"sort"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// Kind distinguishes where a relocation's addend lives.
type Kind int

const (
	// REL relocations store their addend in the section's own payload
	// bytes; the relocation entry itself carries no addend field.
	REL Kind = iota
	// RELA relocations carry an explicit addend field in the relocation
	// entry; the section payload at the relocated location is not
	// consulted for the addend.
	RELA
)

// Record is one relevant relocation: its location within the owning
// section, its effective addend (symbol value + stored/entry addend, so
// reads and writes can treat the record uniformly), and which relocation
// entry produced it (needed when flushing RELA addends back out).
type Record struct {
	Offset   uint64 // byte offset into the owning section's payload
	Addend   int64  // symbol value + entry addend: the effective target
	SymValue int64  // symbol value alone, needed to re-derive entry addend on flush
	EntryIdx int    // index into the original relocation entries, for flush
	dirty    bool
}

// Index is the per-section relocation index: Records sorted by Offset,
// plus the "last hit" one-slot register spec §4.D and §9 describe (moving
// the original's process-wide globals into per-index state).
type Index struct {
	Kind    Kind
	Records []Record

	lastHit  int // index into Records of the most recent Read32 hit, or -1
	anyDirty bool
}

// Machine32BitAbsoluteTypes lists, for every e_machine debugedit recognizes
// (spec §6), the relocation type treated as a 32-bit absolute reference to
// a debug-section symbol.
var Machine32BitAbsoluteTypes = map[elf.Machine]uint32{
	elf.EM_SPARC:     uint32(elf.R_SPARC_32),
	elf.EM_386:       uint32(elf.R_386_32),
	elf.EM_PPC:       uint32(elf.R_PPC_ADDR32),
	elf.EM_PPC64:     uint32(elf.R_PPC64_ADDR32),
	elf.EM_S390:      uint32(elf.R_390_32),
	elf.EM_PARISC:    uint32(elf.R_PARISC_DIR32),
	elf.EM_IA_64:     uint32(elf.R_IA64_SECREL32LSB),
	elf.EM_X86_64:    uint32(elf.R_X86_64_32),
	elf.EM_ALPHA:     uint32(elf.R_ALPHA_REFLONG),
	elf.EM_AARCH64:   uint32(elf.R_AARCH64_ABS32),
	elf.EM_68K:       uint32(elf.R_68K_32),
	elf.EM_RISCV:     uint32(elf.R_RISCV_32),
	elf.EM_LOONGARCH: uint32(elf.R_LARCH_32),
}

// machineAltTypes carries the secondary "unaligned" relocation variants of
// the machines that have one (SPARC UA32, PPC UADDR32).
var machineAltTypes = map[elf.Machine][]uint32{
	elf.EM_SPARC: {uint32(elf.R_SPARC_UA32)},
	elf.EM_PPC:   {uint32(elf.R_PPC_UADDR32)},
}

// r2kAbs32 and rAMDGPUAbs32 are the 32-bit absolute relocation type codes
// for E2K (MCST Elbrus) and AMDGPU respectively. Go's debug/elf package
// defines elf.EM_MCST_ELBRUS and elf.EM_AMDGPU as machine constants but,
// unlike the other machines here, does not define their relocation type
// enums, so the numeric codes (from the psABI supplements for each) are
// given directly.
const (
	rE2K32Abs    uint32 = 44
	rAMDGPUAbs32 uint32 = 1
)

func init() {
	Machine32BitAbsoluteTypes[elf.EM_MCST_ELBRUS] = rE2K32Abs
	Machine32BitAbsoluteTypes[elf.EM_AMDGPU] = rAMDGPUAbs32
}

// Accepts reports whether relType is the recognized 32-bit absolute
// relocation type for machine.
func Accepts(machine elf.Machine, relType uint32) bool {
	if want, ok := Machine32BitAbsoluteTypes[machine]; ok && want == relType {
		return true
	}
	for _, alt := range machineAltTypes[machine] {
		if alt == relType {
			return true
		}
	}
	return false
}

// RawRel is one entry read out of a .rel.* or .rela.* section, in a form
// independent of ELF32 vs ELF64 encoding.
type RawRel struct {
	Offset   uint64
	Type     uint32
	SymValue int64
	Addend   int64 // zero for REL; the entry's explicit addend for RELA
}

// Build constructs a sorted Index from the raw relocation entries of one
// section. Every entry's type must be the machine's recognized 32-bit
// absolute form; any other type makes Build fail with a constraint error.
// REL entries whose symbol value is zero are dropped — a zero-valued REL
// symbol carries no information.
func Build(kind Kind, machine elf.Machine, entries []RawRel) (*Index, error) {
	idx := &Index{Kind: kind, lastHit: -1}

	for i, e := range entries {
		if !Accepts(machine, e.Type) {
			return nil, errs.Constraintf("unsupported relocation type %d for machine %v", e.Type, machine)
		}
		if kind == REL && e.SymValue == 0 {
			continue
		}
		idx.Records = append(idx.Records, Record{
			Offset:   e.Offset,
			Addend:   e.SymValue + e.Addend,
			SymValue: e.SymValue,
			EntryIdx: i,
		})
	}

	sort.Slice(idx.Records, func(i, j int) bool { return idx.Records[i].Offset < idx.Records[j].Offset })
	return idx, nil
}

func (idx *Index) find(ptr uint64) int {
	i := sort.Search(len(idx.Records), func(i int) bool { return idx.Records[i].Offset >= ptr })
	if i < len(idx.Records) && idx.Records[i].Offset == ptr {
		return i
	}
	return -1
}

// Read32Relocated returns the effective 32-bit value at ptr within the
// owning section: the record's addend for RELA, in-place-value+addend for
// REL, or simply the raw in-place value when no relocation covers ptr. It
// remembers the hit (if any) so an immediately following Write32Relocated
// with the same ptr can update the right place. Calling Write32Relocated
// after any other Index call on this Index is a contract violation (spec
// §4.D) — this type does not attempt to detect that misuse, by design:
// the cost of a reliable detector (tracking every intervening call) would
// outweigh a bug class callers avoid simply by pairing every read/write.
func (idx *Index) Read32Relocated(data []byte, ptr uint64, rawInPlace uint32) uint32 {
	hit := idx.find(ptr)
	idx.lastHit = hit

	if hit < 0 {
		return rawInPlace
	}

	rec := idx.Records[hit]
	if idx.Kind == RELA {
		return uint32(rec.Addend)
	}
	// REL: the relocation entry carries no addend field (entry.Addend is
	// always 0 at Build time for REL), so rec.Addend is just the symbol
	// value; the actual addend lives in the section's stored bytes.
	return uint32(int64(rawInPlace) + rec.Addend)
}

// Write32Relocated writes a new effective value back to ptr: for REL, the
// in-place bytes are rewritten to the new value minus the record's symbol
// value, so a later Read32Relocated yields newValue again (the caller
// supplies a write-back function since the in-place bytes live in
// caller-owned section data); for RELA, the matching record's Addend is
// updated and the record is marked dirty so the orchestrator's flush pass
// re-encodes it.
func (idx *Index) Write32Relocated(ptr uint64, newValue uint32, writeInPlace func(v uint32)) {
	hit := idx.lastHit
	if hit < 0 || idx.Records[hit].Offset != ptr {
		hit = idx.find(ptr)
	}

	if hit < 0 {
		writeInPlace(newValue)
		return
	}
	if idx.Kind == REL {
		writeInPlace(uint32(int64(newValue) - idx.Records[hit].Addend))
		return
	}

	rec := &idx.Records[hit]
	rec.Addend = int64(newValue)
	rec.dirty = true
	idx.anyDirty = true
}

// Dirty reports whether any RELA record's addend was changed since Build.
func (idx *Index) Dirty() bool { return idx.anyDirty }

// FlushedAddend re-derives the ELF-entry addend (the value written back
// into the r_addend field) for record i: the effective addend minus the
// symbol value that was folded in at Build time.
func (idx *Index) FlushedAddend(i int) int64 {
	return idx.Records[i].Addend - idx.Records[i].SymValue
}

// EntryIndex returns the position within the original raw-entry slice that
// Record i came from, so a caller can write FlushedAddend(i) back into the
// right ELF relocation entry.
func (idx *Index) EntryIndex(i int) int { return idx.Records[i].EntryIdx }

// DirtyRecords returns the indices of every record whose addend changed,
// in Records order, for the orchestrator's flush pass.
func (idx *Index) DirtyRecords() []int {
	var out []int
	for i, r := range idx.Records {
		if r.dirty {
			out = append(out, i)
		}
	}
	return out
}
