package edit

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"encoding/binary"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// align rounds off up to the next multiple of alignment (alignment==0 or 1
// means no alignment constraint).
func align(off, alignment uint64) uint64 {
	if alignment <= 1 {
		return off
	}
	rem := off % alignment
	if rem == 0 {
		return off
	}
	return off + (alignment - rem)
}

// reflow recomputes file offsets for every unallocated section, per spec
// §4.J's "section reflow" step: allocated-section offsets are never
// touched; only unallocated sections and the section-header table itself
// move. RewriteFile calls it on every run, whether or not any section
// changed size, so unallocated sections are always repacked from the end
// of the allocated region and their file offsets can move even when no
// section changed size.
//
// It returns the complete new file image.
func reflow(raw []byte, h *ehdr, rawHeaders []rawSectionHeader, secs *sections) ([]byte, []rawSectionHeader, error) {
	endOfAllocated := h.ehsize
	if phEnd := h.phoff + uint64(h.phnum)*uint64(h.phentsize); phEnd > endOfAllocated {
		endOfAllocated = phEnd
	}
	for _, rsh := range rawHeaders {
		if rsh.flags&uint64(elf.SHF_ALLOC) != 0 {
			end := rsh.offset + rsh.size
			if end > endOfAllocated {
				endOfAllocated = end
			}
		}
	}

	byIndex := make(map[int]*section, len(secs.all))
	for _, d := range secs.all {
		byIndex[d.index] = d
	}

	newHeaders := append([]rawSectionHeader(nil), rawHeaders...)
	cursor := endOfAllocated

	// payload bytes for every section, keyed by index, used to assemble the
	// final buffer; unchanged/unallocated sections not touched by this run
	// are copied verbatim from raw at their original offset.
	payloads := make(map[int][]byte, len(newHeaders))

	for i := range newHeaders {
		rsh := &newHeaders[i]
		if rsh.flags&uint64(elf.SHF_ALLOC) != 0 {
			continue // never moved
		}
		if elf.SectionType(rsh.shType) == elf.SHT_NULL {
			continue
		}

		payload := sectionPayloadBytes(raw, *rsh, byIndex[i], h)
		if elf.SectionType(rsh.shType) != elf.SHT_NOBITS {
			cursor = align(cursor, rsh.addralign)
			rsh.offset = cursor
			rsh.size = uint64(len(payload))
			cursor += uint64(len(payload))
		}
		payloads[i] = payload
	}

	shAlign := uint64(4)
	if h.class == elf.ELFCLASS64 {
		shAlign = 8
	}
	cursor = align(cursor, shAlign)
	newShoff := cursor
	cursor += uint64(h.shnum) * uint64(h.shentsize)

	out := make([]byte, cursor)
	copy(out, raw[:endOfAllocated])

	for i, rsh := range newHeaders {
		if rsh.flags&uint64(elf.SHF_ALLOC) != 0 {
			if elf.SectionType(rsh.shType) != elf.SHT_NOBITS && rsh.offset+rsh.size <= uint64(len(raw)) {
				copy(out[rsh.offset:rsh.offset+rsh.size], raw[rsh.offset:rsh.offset+rsh.size])
			}
			continue
		}
		if p, ok := payloads[i]; ok && elf.SectionType(rsh.shType) != elf.SHT_NOBITS {
			copy(out[rsh.offset:rsh.offset+uint64(len(p))], p)
		}
	}

	newEhdrBytes, err := rewrittenHeaderBytes(raw, h, newShoff)
	if err != nil {
		return nil, nil, err
	}
	copy(out, newEhdrBytes)

	for i, rsh := range newHeaders {
		dst := out[newShoff+uint64(i)*uint64(h.shentsize) : newShoff+uint64(i+1)*uint64(h.shentsize)]
		if err := writeSectionHeader(dst, h, rsh); err != nil {
			return nil, nil, err
		}
	}

	return out, newHeaders, nil
}

// sectionPayloadBytes returns the bytes that belong at a section's new
// offset: the mutated, possibly resized, possibly recompressed payload for
// a section descriptor we touched, or the section's original on-disk bytes
// (including any compression header) for one we never looked at.
func sectionPayloadBytes(raw []byte, rsh rawSectionHeader, desc *section, h *ehdr) []byte {
	if desc == nil {
		return append([]byte(nil), raw[rsh.offset:rsh.offset+rsh.size]...)
	}
	if !desc.compressed {
		return desc.payload
	}
	compressed, err := recompress(desc.payload, desc.chType, desc.chAddralign, uint64(len(desc.payload)), h)
	if err != nil {
		// Recompression failure (only possible for an unsupported scheme,
		// since desc.chType was read from the original file and zstd has no
		// writer available) falls back to storing the section uncompressed;
		// callers that care check desc.compressed before trusting chType.
		return desc.payload
	}
	return compressed
}

// recompress re-wraps payload in an Elf32_Chdr/Elf64_Chdr plus compressed
// body, matching the original section's compression type and the object's
// class (ELF32's Chdr has no reserved padding word; ELF64's does). Only
// COMPRESS_ZLIB is supported: no zstd-writing library is available, so a
// zstd-compressed section whose payload changed is reported as unsupported.
func recompress(payload []byte, chType elf.CompressionType, chAddralign uint64, logicalSize uint64, h *ehdr) ([]byte, error) {
	if chType != elf.COMPRESS_ZLIB {
		return nil, errs.Constraintf("recompressing a changed section requires zlib; found compression type %v", chType)
	}

	var body bytes.Buffer
	w := zlib.NewWriter(&body)
	if _, err := w.Write(payload); err != nil {
		return nil, errs.Wrap(errs.Resource, err, "zlib-compressing section payload")
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.Resource, err, "closing zlib writer")
	}

	var out bytes.Buffer
	switch h.class {
	case elf.ELFCLASS64:
		chdr := elf.Chdr64{Type: uint32(chType), Size: logicalSize, Addralign: chAddralign}
		if err := binary.Write(&out, h.order, &chdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding compression header")
		}
	default:
		chdr := elf.Chdr32{Type: uint32(chType), Size: uint32(logicalSize), Addralign: uint32(chAddralign)}
		if err := binary.Write(&out, h.order, &chdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding compression header")
		}
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// rewrittenHeaderBytes returns a copy of the ELF header with e_shoff
// updated to newShoff (e_phoff is untouched: program headers never move).
func rewrittenHeaderBytes(raw []byte, h *ehdr, newShoff uint64) ([]byte, error) {
	switch h.class {
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(bytes.NewReader(raw), h.order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF32 header")
		}
		hdr.Shoff = uint32(newShoff)
		var buf bytes.Buffer
		if err := binary.Write(&buf, h.order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding ELF32 header")
		}
		return buf.Bytes(), nil
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(bytes.NewReader(raw), h.order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF64 header")
		}
		hdr.Shoff = newShoff
		var buf bytes.Buffer
		if err := binary.Write(&buf, h.order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding ELF64 header")
		}
		return buf.Bytes(), nil
	}
	return nil, errs.Formatf("unsupported ELF class %v", h.class)
}

