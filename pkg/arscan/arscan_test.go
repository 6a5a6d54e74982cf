package arscan_test

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/Manu343726/debugedit/pkg/arscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalELF64 builds a tiny ET_REL ELF64 object with just a NULL
// section and, optionally, one named debug section.
func buildMinimalELF64(t *testing.T, debugSectionName string) []byte {
	t.Helper()

	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	var nameOff uint32
	if debugSectionName != "" {
		nameOff = uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(debugSectionName), 0)...)
	}
	shstrtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, append([]byte(".shstrtab"), 0)...)

	const ehsize = 64
	const shentsize = 64

	numSections := 2
	if debugSectionName != "" {
		numSections = 3
	}

	shstrtabOffset := uint64(ehsize)
	shoff := shstrtabOffset + uint64(len(shstrtab))
	if rem := shoff % 8; rem != 0 {
		shoff += 8 - rem
	}

	total := shoff + uint64(numSections)*shentsize
	out := make([]byte, total)

	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 2
	out[5] = 1
	out[6] = 1
	binary.LittleEndian.PutUint16(out[16:], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(out[18:], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(out[20:], 1)
	binary.LittleEndian.PutUint64(out[40:], shoff)
	binary.LittleEndian.PutUint16(out[52:], ehsize)
	binary.LittleEndian.PutUint16(out[58:], shentsize)
	binary.LittleEndian.PutUint16(out[60:], uint16(numSections))
	binary.LittleEndian.PutUint16(out[62:], uint16(numSections-1))

	copy(out[shstrtabOffset:], shstrtab)

	writeSH := func(idx int, nameOff, shType uint32, offset, size uint64) {
		base := int(shoff) + idx*shentsize
		binary.LittleEndian.PutUint32(out[base:], nameOff)
		binary.LittleEndian.PutUint32(out[base+4:], shType)
		binary.LittleEndian.PutUint64(out[base+24:], offset)
		binary.LittleEndian.PutUint64(out[base+32:], size)
		binary.LittleEndian.PutUint64(out[base+48:], 1)
	}

	writeSH(0, 0, uint32(elf.SHT_NULL), 0, 0)
	idx := 1
	if debugSectionName != "" {
		writeSH(idx, nameOff, uint32(elf.SHT_PROGBITS), shstrtabOffset, 0)
		idx++
	}
	writeSH(idx, shstrtabNameOff, uint32(elf.SHT_STRTAB), shstrtabOffset, uint64(len(shstrtab)))

	return out
}

func arMember(name string, data []byte) []byte {
	var hdr [60]byte
	copy(hdr[0:], fmt.Sprintf("%-16s", name+"/"))
	copy(hdr[16:], fmt.Sprintf("%-12d", 0))
	copy(hdr[28:], fmt.Sprintf("%-6d", 0))
	copy(hdr[34:], fmt.Sprintf("%-6d", 0))
	copy(hdr[40:], fmt.Sprintf("%-8s", "100644"))
	copy(hdr[48:], fmt.Sprintf("%-10d", len(data)))
	hdr[58], hdr[59] = '`', '\n'

	out := append([]byte{}, hdr[:]...)
	out = append(out, data...)
	if len(data)%2 != 0 {
		out = append(out, '\n')
	}
	return out
}

func buildArchive(members ...[]byte) []byte {
	out := []byte("!<arch>\n")
	for _, m := range members {
		out = append(out, m...)
	}
	return out
}

func TestClassifyMemberNotELF(t *testing.T) {
	class, err := arscan.ClassifyMember([]byte("hello, not an object"))
	require.NoError(t, err)
	assert.Equal(t, arscan.NotELF, class)
}

func TestClassifyMemberNoDebugSections(t *testing.T) {
	data := buildMinimalELF64(t, "")
	class, err := arscan.ClassifyMember(data)
	require.NoError(t, err)
	assert.Equal(t, arscan.NoDebugSections, class)
}

func TestClassifyMemberHasDebugSections(t *testing.T) {
	data := buildMinimalELF64(t, ".debug_info")
	class, err := arscan.ClassifyMember(data)
	require.NoError(t, err)
	assert.Equal(t, arscan.HasDebugSections, class)
}

func TestClassifyArchiveAcceptsWithDebugMember(t *testing.T) {
	plain := buildMinimalELF64(t, "")
	withDebug := buildMinimalELF64(t, ".debug_info")
	archive := buildArchive(arMember("a.o", plain), arMember("b.o", withDebug))

	res, err := arscan.ClassifyArchive(archive, -1)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.HasDebugMember)
	assert.Equal(t, 2, res.MemberCount)
}

func TestClassifyArchiveRejectsWithoutDebugMember(t *testing.T) {
	plain := buildMinimalELF64(t, "")
	archive := buildArchive(arMember("a.o", plain))

	res, err := arscan.ClassifyArchive(archive, -1)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.False(t, res.HasDebugMember)
}

func TestClassifyArchiveRejectsTooManyMembers(t *testing.T) {
	withDebug := buildMinimalELF64(t, ".debug_info")
	archive := buildArchive(arMember("a.o", withDebug), arMember("b.o", withDebug))

	res, err := arscan.ClassifyArchive(archive, 1)
	require.NoError(t, err)
	assert.True(t, res.TooManyMembers)
	assert.False(t, res.Accepted)
}

func TestClassifyArchiveRejectsBadMagic(t *testing.T) {
	_, err := arscan.ClassifyArchive([]byte("not an archive at all"), -1)
	assert.Error(t, err)
}
