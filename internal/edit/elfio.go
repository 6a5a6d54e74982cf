package edit

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// ehdr holds the handful of ELF header fields the orchestrator needs to
// locate the program and section header tables, decoded once regardless
// of ELFCLASS32 vs ELFCLASS64.
type ehdr struct {
	class     elf.Class
	order     binary.ByteOrder
	ehsize    uint64
	phoff     uint64
	phnum     int
	phentsize int
	shoff     uint64
	shnum     int
	shentsize int
}

func readEhdr(raw []byte, class elf.Class, order binary.ByteOrder) (*ehdr, error) {
	r := bytes.NewReader(raw)
	h := &ehdr{class: class, order: order}

	switch class {
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(r, order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF32 header")
		}
		h.ehsize = uint64(hdr.Ehsize)
		h.phoff, h.phnum, h.phentsize = uint64(hdr.Phoff), int(hdr.Phnum), int(hdr.Phentsize)
		h.shoff, h.shnum, h.shentsize = uint64(hdr.Shoff), int(hdr.Shnum), int(hdr.Shentsize)
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(r, order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF64 header")
		}
		h.ehsize = uint64(hdr.Ehsize)
		h.phoff, h.phnum, h.phentsize = hdr.Phoff, int(hdr.Phnum), int(hdr.Phentsize)
		h.shoff, h.shnum, h.shentsize = hdr.Shoff, int(hdr.Shnum), int(hdr.Shentsize)
	default:
		return nil, errs.Formatf("unsupported ELF class %v", class)
	}

	return h, nil
}

// zeroedHeaderBytes returns a copy of the ELF header with e_phoff and
// e_shoff cleared, for build-ID canonicalization (spec §4.K).
func zeroedHeaderBytes(raw []byte, class elf.Class, order binary.ByteOrder) ([]byte, error) {
	switch class {
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF32 header")
		}
		hdr.Phoff, hdr.Shoff = 0, 0
		var buf bytes.Buffer
		if err := binary.Write(&buf, order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding ELF32 header")
		}
		return buf.Bytes(), nil
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Format, err, "reading ELF64 header")
		}
		hdr.Phoff, hdr.Shoff = 0, 0
		var buf bytes.Buffer
		if err := binary.Write(&buf, order, &hdr); err != nil {
			return nil, errs.Wrap(errs.Resource, err, "encoding ELF64 header")
		}
		return buf.Bytes(), nil
	default:
		return nil, errs.Formatf("unsupported ELF class %v", class)
	}
}

// rawSectionHeader is one section header's fields widened to 64 bits,
// independent of ELFCLASS32 vs ELFCLASS64, plus its zeroed-offset encoding
// for build-ID hashing.
type rawSectionHeader struct {
	name      uint32
	shType    uint32
	flags     uint64
	addr      uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
}

func readSectionHeaders(raw []byte, h *ehdr) ([]rawSectionHeader, error) {
	out := make([]rawSectionHeader, 0, h.shnum)
	for i := 0; i < h.shnum; i++ {
		off := int(h.shoff) + i*h.shentsize
		if off+h.shentsize > len(raw) {
			return nil, errs.Formatf("section header %d runs past end of file", i)
		}
		r := bytes.NewReader(raw[off : off+h.shentsize])

		var rsh rawSectionHeader
		switch h.class {
		case elf.ELFCLASS32:
			var sh elf.Section32
			if err := binary.Read(r, h.order, &sh); err != nil {
				return nil, errs.Wrap(errs.Format, err, "reading section header %d", i)
			}
			rsh = rawSectionHeader{
				name: sh.Name, shType: sh.Type, flags: uint64(sh.Flags), addr: uint64(sh.Addr),
				offset: uint64(sh.Off), size: uint64(sh.Size), link: sh.Link, info: sh.Info,
				addralign: uint64(sh.Addralign), entsize: uint64(sh.Entsize),
			}
		case elf.ELFCLASS64:
			var sh elf.Section64
			if err := binary.Read(r, h.order, &sh); err != nil {
				return nil, errs.Wrap(errs.Format, err, "reading section header %d", i)
			}
			rsh = rawSectionHeader{
				name: sh.Name, shType: sh.Type, flags: sh.Flags, addr: sh.Addr,
				offset: sh.Off, size: sh.Size, link: sh.Link, info: sh.Info,
				addralign: sh.Addralign, entsize: sh.Entsize,
			}
		}
		out = append(out, rsh)
	}
	return out, nil
}

// writeSectionHeader re-encodes one section header into dst (which must be
// exactly h.shentsize bytes, already positioned at the header's slot).
func writeSectionHeader(dst []byte, h *ehdr, rsh rawSectionHeader) error {
	var buf bytes.Buffer
	switch h.class {
	case elf.ELFCLASS32:
		sh := elf.Section32{
			Name: rsh.name, Type: rsh.shType, Flags: uint32(rsh.flags), Addr: uint32(rsh.addr),
			Off: uint32(rsh.offset), Size: uint32(rsh.size), Link: rsh.link, Info: rsh.info,
			Addralign: uint32(rsh.addralign), Entsize: uint32(rsh.entsize),
		}
		if err := binary.Write(&buf, h.order, &sh); err != nil {
			return errs.Wrap(errs.Resource, err, "encoding section header")
		}
	case elf.ELFCLASS64:
		sh := elf.Section64{
			Name: rsh.name, Type: rsh.shType, Flags: rsh.flags, Addr: rsh.addr,
			Off: rsh.offset, Size: rsh.size, Link: rsh.link, Info: rsh.info,
			Addralign: rsh.addralign, Entsize: rsh.entsize,
		}
		if err := binary.Write(&buf, h.order, &sh); err != nil {
			return errs.Wrap(errs.Resource, err, "encoding section header")
		}
	}
	copy(dst, buf.Bytes())
	return nil
}

// zeroedSectionHeaderBytes encodes rsh with its offset field cleared, for
// build-ID canonicalization.
func zeroedSectionHeaderBytes(h *ehdr, rsh rawSectionHeader) ([]byte, error) {
	rsh.offset = 0
	buf := make([]byte, h.shentsize)
	if err := writeSectionHeader(buf, h, rsh); err != nil {
		return nil, err
	}
	return buf, nil
}
