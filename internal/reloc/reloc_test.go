package reloc_test

import (
	"debug/elf"
	"testing"

	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptsPrimaryAndAltTypes(t *testing.T) {
	assert.True(t, reloc.Accepts(elf.EM_X86_64, uint32(elf.R_X86_64_32)))
	assert.True(t, reloc.Accepts(elf.EM_SPARC, uint32(elf.R_SPARC_32)))
	assert.True(t, reloc.Accepts(elf.EM_SPARC, uint32(elf.R_SPARC_UA32)))
	assert.True(t, reloc.Accepts(elf.EM_PPC, uint32(elf.R_PPC_UADDR32)))
	assert.False(t, reloc.Accepts(elf.EM_X86_64, uint32(elf.R_X86_64_64)))
}

func TestAcceptsE2KAndAMDGPU(t *testing.T) {
	assert.True(t, reloc.Accepts(elf.EM_MCST_ELBRUS, 44))
	assert.True(t, reloc.Accepts(elf.EM_AMDGPU, 1))
	assert.False(t, reloc.Accepts(elf.EM_MCST_ELBRUS, 1))
}

func TestBuildRejectsUnsupportedType(t *testing.T) {
	_, err := reloc.Build(reloc.RELA, elf.EM_X86_64, []reloc.RawRel{
		{Offset: 0, Type: uint32(elf.R_X86_64_64), SymValue: 1},
	})
	assert.Error(t, err)
}

func TestBuildSkipsZeroValueREL(t *testing.T) {
	idx, err := reloc.Build(reloc.REL, elf.EM_386, []reloc.RawRel{
		{Offset: 0, Type: uint32(elf.R_386_32), SymValue: 0},
		{Offset: 4, Type: uint32(elf.R_386_32), SymValue: 100},
	})
	require.NoError(t, err)
	assert.Len(t, idx.Records, 1)
	assert.Equal(t, uint64(4), idx.Records[0].Offset)
}

func TestBuildSortsByOffset(t *testing.T) {
	idx, err := reloc.Build(reloc.RELA, elf.EM_X86_64, []reloc.RawRel{
		{Offset: 8, Type: uint32(elf.R_X86_64_32), SymValue: 1, Addend: 0},
		{Offset: 0, Type: uint32(elf.R_X86_64_32), SymValue: 2, Addend: 0},
	})
	require.NoError(t, err)
	require.Len(t, idx.Records, 2)
	assert.Equal(t, uint64(0), idx.Records[0].Offset)
	assert.Equal(t, uint64(8), idx.Records[1].Offset)
}

func TestRead32RelocatedRELAUsesAddend(t *testing.T) {
	idx, err := reloc.Build(reloc.RELA, elf.EM_X86_64, []reloc.RawRel{
		{Offset: 16, Type: uint32(elf.R_X86_64_32), SymValue: 100, Addend: 5},
	})
	require.NoError(t, err)

	got := idx.Read32Relocated(nil, 16, 0xdeadbeef)
	assert.Equal(t, uint32(105), got)
}

func TestRead32RelocatedRELCombinesInPlaceAndSymbol(t *testing.T) {
	idx, err := reloc.Build(reloc.REL, elf.EM_386, []reloc.RawRel{
		{Offset: 0, Type: uint32(elf.R_386_32), SymValue: 100},
	})
	require.NoError(t, err)

	got := idx.Read32Relocated(nil, 0, 7)
	assert.Equal(t, uint32(107), got)
}

func TestRead32RelocatedNoHitReturnsRaw(t *testing.T) {
	idx, err := reloc.Build(reloc.REL, elf.EM_386, nil)
	require.NoError(t, err)

	got := idx.Read32Relocated(nil, 100, 42)
	assert.Equal(t, uint32(42), got)
}

func TestWrite32RelocatedRELWritesInPlace(t *testing.T) {
	idx, err := reloc.Build(reloc.REL, elf.EM_386, []reloc.RawRel{
		{Offset: 0, Type: uint32(elf.R_386_32), SymValue: 100},
	})
	require.NoError(t, err)

	idx.Read32Relocated(nil, 0, 7)

	// The effective value 999 is stored in place minus the symbol value 100.
	var written uint32
	idx.Write32Relocated(0, 999, func(v uint32) { written = v })
	assert.Equal(t, uint32(899), written)
	assert.False(t, idx.Dirty())
}

func TestWrite32RelocatedRELANoInPlaceWrite(t *testing.T) {
	idx, err := reloc.Build(reloc.RELA, elf.EM_X86_64, []reloc.RawRel{
		{Offset: 0, Type: uint32(elf.R_X86_64_32), SymValue: 100, Addend: 5},
	})
	require.NoError(t, err)

	idx.Read32Relocated(nil, 0, 0)

	called := false
	idx.Write32Relocated(0, 200, func(v uint32) { called = true })
	assert.False(t, called)
	assert.True(t, idx.Dirty())

	dirty := idx.DirtyRecords()
	require.Len(t, dirty, 1)
	assert.Equal(t, int64(100), idx.FlushedAddend(dirty[0]))
	assert.Equal(t, 0, idx.EntryIndex(dirty[0]))
}

func TestWrite32RelocatedWithoutPriorReadStillFinds(t *testing.T) {
	idx, err := reloc.Build(reloc.RELA, elf.EM_X86_64, []reloc.RawRel{
		{Offset: 24, Type: uint32(elf.R_X86_64_32), SymValue: 10, Addend: 0},
	})
	require.NoError(t, err)

	idx.Write32Relocated(24, 55, func(uint32) {})
	assert.True(t, idx.Dirty())
	assert.Equal(t, int64(45), idx.FlushedAddend(0))
}
