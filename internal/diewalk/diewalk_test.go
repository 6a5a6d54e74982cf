package diewalk_test

import (
	"encoding/binary"
	"testing"

	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/diewalk"
	"github.com/Manu343726/debugedit/internal/linetable"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

// singleDeclAbbrev builds a .debug_abbrev payload with one declaration,
// code 1, the given tag and (attr, form) pairs, and no children.
func singleDeclAbbrev(tag byte, pairs ...byte) []byte {
	data := []byte{1, tag, 0}
	data = append(data, pairs...)
	data = append(data, 0, 0) // attr/form terminator
	data = append(data, 0)    // table terminator
	return data
}

// cuHeaderV4 builds a DWARF4 CU header (unit_length computed from the
// supplied body) followed by body, ready to hand to diewalk.Walk.
func cuHeaderV4(body []byte) []byte {
	rest := append([]byte{}, u16le(4)...) // version
	rest = append(rest, u32le(0)...)      // abbrev offset
	rest = append(rest, 8)                // address size
	rest = append(rest, body...)

	out := append([]byte{}, u32le(uint32(len(rest)))...)
	out = append(out, rest...)
	return out
}

func newDeps(abbrevData []byte) *diewalk.Deps {
	c := bitcodec.New(binary.LittleEndian)
	idx, _ := reloc.Build(reloc.REL, 0, nil)
	return &diewalk.Deps{
		Codec:         c,
		AbbrevSection: abbrevData,
		Reloc:         idx,
	}
}

func TestWalkObserveCapturesStmtListAndMacros(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x10, 0x06, 0x79, 0x06) // stmt_list data4, macros data4

	body := []byte{1} // abbrev code 1
	body = append(body, u32le(0x20)...)
	body = append(body, u32le(0x40)...)
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)
	require.Len(t, cus, 1)

	cu := cus[0]
	assert.True(t, cu.HasStmtList)
	assert.Equal(t, 0x20, cu.StmtListOffset)
	assert.True(t, cu.HasMacros)
	assert.Equal(t, uint32(0x40), cu.MacrosOffset)
	assert.Equal(t, uint16(4), cu.Version)
	assert.Equal(t, 8, cu.PtrSize)
}

func TestWalkRewritesInlineCompDirInPlace(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x1b, 0x08) // comp_dir, DW_FORM_string

	body := []byte{1}
	body = append(body, cstr("/build/root/sub")...)
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)
	deps.BaseDir = "/build/root"
	deps.DestDir = "/dbg"

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)
	require.Equal(t, "/build/root/sub", cus[0].CompDir)

	_, err = diewalk.Walk(deps, info, diewalk.Mutate, cus)
	require.NoError(t, err)

	origLen := len("/build/root/sub")
	start := len(info) - origLen - 1

	// The field keeps its original byte width, padded with '/', so the
	// NUL terminator stays exactly where it was.
	assert.Equal(t, byte(0), info[start+origLen])
	assert.Equal(t, "/dbg/sub", string(info[start:start+len("/dbg/sub")]))
	for i := start + len("/dbg/sub"); i < start+origLen; i++ {
		assert.Equal(t, byte('/'), info[i])
	}
}

func TestWalkRewriteOverflowLeavesBytesAndWarns(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x1b, 0x08)

	body := []byte{1}
	body = append(body, cstr("/b")...)
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)
	deps.BaseDir = "/b"
	deps.DestDir = "/much/longer/destination"

	var warned bool
	deps.WarnOverflow = func(cuOffset int64, original, attempted string) {
		warned = true
		assert.Equal(t, "/b", original)
	}

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)

	before := append([]byte{}, info...)
	_, err = diewalk.Walk(deps, info, diewalk.Mutate, cus)
	require.NoError(t, err)

	assert.True(t, warned)
	assert.Equal(t, before, info)
}

func TestWalkRegistersAndRewritesStrpCompDir(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x1b, 0x0e) // comp_dir, DW_FORM_strp

	strData := cstr("/build/root/lib")
	body := []byte{1}
	body = append(body, u32le(0)...) // strp offset into .debug_str
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)
	deps.BaseDir = "/build/root"
	deps.DestDir = "/usr/src/debug"
	deps.StrData = strData
	deps.StrPool = strpool.New(strData, deps.BaseDir, deps.DestDir)

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)
	assert.Equal(t, "/build/root/lib", cus[0].CompDir)

	_, err = deps.StrPool.Finalize()
	require.NoError(t, err)

	_, err = diewalk.Walk(deps, info, diewalk.Mutate, cus)
	require.NoError(t, err)

	newOff := binary.LittleEndian.Uint32(info[len(info)-4:])
	wantOff, _, err := deps.StrPool.Lookup(0, false)
	require.NoError(t, err)
	assert.Equal(t, wantOff, newOff)
}

func TestWalkSynthesizesCompDirFromAbsoluteName(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x03, 0x08) // name, DW_FORM_string

	body := []byte{1}
	body = append(body, cstr("/home/user/project/main.c")...)
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/project", cus[0].CompDir)
}

func TestWalkMutateRequiresMatchingCUList(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x03, 0x08)

	body := []byte{1}
	body = append(body, cstr("/x")...)
	info := cuHeaderV4(body)

	deps := newDeps(abbrevData)

	_, err := diewalk.Walk(deps, info, diewalk.Mutate, nil)
	assert.Error(t, err)
}

func TestWalkTranslatesStmtListOffsetOnMutate(t *testing.T) {
	abbrevData := singleDeclAbbrev(0x11, 0x10, 0x06) // stmt_list, data4

	body := []byte{1}
	body = append(body, u32le(0)...)
	info := cuHeaderV4(body)

	lineHeader := buildMinimalV4LineUnit()

	deps := newDeps(abbrevData)
	deps.LineData = lineHeader
	deps.LineRegistry = linetable.NewRegistry()

	cus, err := diewalk.Walk(deps, info, diewalk.Observe, nil)
	require.NoError(t, err)
	require.True(t, cus[0].HasStmtList)

	deps.LineRegistry.Tables()[0].NewOffset = 0x99
	deps.LineRegistry.Finalize()
	deps.NeedStmtUpdate = true

	_, err = diewalk.Walk(deps, info, diewalk.Mutate, cus)
	require.NoError(t, err)

	got := binary.LittleEndian.Uint32(info[len(info)-4:])
	assert.Equal(t, uint32(0x99), got)
}

// buildMinimalV4LineUnit builds the smallest well-formed DWARF4
// .debug_line unit ParseHeader accepts: opcode_base 1 (no standard
// opcodes), empty directory and file tables.
func buildMinimalV4LineUnit() []byte {
	var prologue []byte
	prologue = append(prologue, 1)    // min_instr_len
	prologue = append(prologue, 1)    // max_op_per_instr
	prologue = append(prologue, 1)    // default_is_stmt
	prologue = append(prologue, 0xfb) // line_base -5
	prologue = append(prologue, 14)   // line_range
	prologue = append(prologue, 1)    // opcode_base
	prologue = append(prologue, 0, 0) // empty dir table, empty file table

	headerLength := len(prologue)

	rest := append([]byte{}, u16le(4)...) // version
	rest = append(rest, u32le(uint32(headerLength))...)
	rest = append(rest, prologue...)

	out := append([]byte{}, u32le(uint32(len(rest)))...)
	out = append(out, rest...)
	return out
}
