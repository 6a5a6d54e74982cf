package edit

import (
	"debug/elf"

	"github.com/Manu343726/debugedit/internal/buildid"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// ntGNUBuildID is DWARF/ELF's NT_GNU_BUILD_ID note type. debug/elf does not
// predefine it (it only carries the core-file NT_* constants), so it is
// given here as the literal value glibc and binutils agree on.
const ntGNUBuildID = 3

// noteLocation pinpoints one parsed ELF note's descriptor within the final
// file buffer, so it can be zeroed and later patched in place.
type noteLocation struct {
	descOffset int
	descSize   int
}

// findBuildIDNote scans every SHT_NOTE section of the final buffer for a
// "GNU"-named, type-3, nonempty note (spec §4.K's precondition).
func findBuildIDNote(final []byte, h *ehdr, headers []rawSectionHeader) (*noteLocation, error) {
	for _, rsh := range headers {
		if elf.SectionType(rsh.shType) != elf.SHT_NOTE {
			continue
		}
		start := int(rsh.offset)
		end := start + int(rsh.size)
		if end > len(final) {
			continue
		}

		pos := start
		for pos+12 <= end {
			namesz := int(h.order.Uint32(final[pos:]))
			descsz := int(h.order.Uint32(final[pos+4:]))
			typ := h.order.Uint32(final[pos+8:])
			pos += 12

			nameEnd := pos + namesz
			if nameEnd > end {
				break
			}
			name := final[pos:nameEnd]
			pos = align4(pos + namesz)

			descStart := pos
			descEnd := descStart + descsz
			if descEnd > end {
				break
			}
			pos = align4(descEnd)

			if typ == ntGNUBuildID && isGNUName(name) && descsz > 0 {
				return &noteLocation{descOffset: descStart, descSize: descsz}, nil
			}
		}
	}
	return nil, errs.Constraintf("no NT_GNU_BUILD_ID note with a nonempty descriptor found")
}

func isGNUName(name []byte) bool {
	trimmed := name
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return string(trimmed) == "GNU"
}

func align4(off int) int {
	if off%4 == 0 {
		return off
	}
	return off + (4 - off%4)
}

// computeBuildID implements spec §4.K end to end against the final,
// already-reflowed file buffer: zero the note descriptor, hash the
// canonicalized header/program-headers/section-headers+payloads, write the
// result back into the descriptor, and return its lowercase hex rendering.
func computeBuildID(final []byte, h *ehdr, headers []rawSectionHeader, seed string) (string, error) {
	loc, err := findBuildIDNote(final, h, headers)
	if err != nil {
		return "", err
	}

	desc := final[loc.descOffset : loc.descOffset+loc.descSize]
	buildid.ZeroDescriptor(desc)

	eng := buildid.New(seed)

	zeroedHdr, err := zeroedHeaderBytes(final, h.class, h.order)
	if err != nil {
		return "", err
	}
	eng.Write(zeroedHdr)

	for i := 0; i < h.phnum; i++ {
		off := int(h.phoff) + i*h.phentsize
		if off+h.phentsize > len(final) {
			return "", errs.Formatf("program header %d runs past end of file", i)
		}
		eng.Write(final[off : off+h.phentsize])
	}

	for _, rsh := range headers {
		zsh, err := zeroedSectionHeaderBytes(h, rsh)
		if err != nil {
			return "", err
		}
		eng.Write(zsh)

		if elf.SectionType(rsh.shType) == elf.SHT_NOBITS {
			continue
		}
		start := int(rsh.offset)
		end := start + int(rsh.size)
		if end > len(final) {
			return "", errs.Formatf("section at 0x%x runs past end of file", start)
		}
		eng.Write(final[start:end])
	}

	sum := eng.Sum()
	if err := buildid.Apply(desc, sum); err != nil {
		return "", err
	}
	return buildid.FormatHex(desc), nil
}
