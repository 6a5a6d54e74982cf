package macro_test

import (
	"encoding/binary"
	"testing"

	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/macro"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uleb(v uint32) []byte {
	buf := make([]byte, 10)
	n := bitcodec.WriteULEB128(buf, v)
	return buf[:n]
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestWalkSkipsDefineUndefAndStartEndFile(t *testing.T) {
	var data []byte
	data = append(data, 5, 0) // version 5
	data = append(data, 0)    // flags: none

	data = append(data, 0x01) // define
	data = append(data, uleb(10)...)
	data = append(data, []byte("FOO 1")...)
	data = append(data, 0)

	data = append(data, 0x03) // start_file
	data = append(data, uleb(1)...)
	data = append(data, uleb(0)...)

	data = append(data, 0x04) // end_file
	data = append(data, 0)    // subsection terminator

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(nil, "", "")

	err = macro.Walk(c, data, idx, pool, macro.Hooks{}, 0)
	assert.NoError(t, err)
}

func TestWalkRejectsBadVersion(t *testing.T) {
	data := []byte{3, 0, 0, 0}
	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(nil, "", "")

	err = macro.Walk(c, data, idx, pool, macro.Hooks{}, 0)
	assert.Error(t, err)
}

func TestWalkRejectsUnknownFlags(t *testing.T) {
	data := []byte{5, 0, 0x04, 0}
	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(nil, "", "")

	err = macro.Walk(c, data, idx, pool, macro.Hooks{}, 0)
	assert.Error(t, err)
}

func TestWalkDefineIndirectRegistersInPhase0(t *testing.T) {
	var strData []byte
	strData = append(strData, []byte("MACRO_VAL 1")...)
	strData = append(strData, 0)

	var data []byte
	data = append(data, 5, 0, 0) // version 5, flags 0
	data = append(data, 0x05)    // define_indirect
	data = append(data, uleb(20)...)
	data = append(data, u32le(0)...) // offset into .debug_str
	data = append(data, 0)           // terminator

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(strData, "", "")

	require.NoError(t, macro.Walk(c, data, idx, pool, macro.Hooks{}, 0))

	_, err = pool.Finalize()
	require.NoError(t, err)
	_, _, err = pool.Lookup(0, false)
	assert.NoError(t, err)
}

func TestWalkDefineIndirectRewritesInPhase1(t *testing.T) {
	var strData []byte
	strData = append(strData, []byte("X")...)
	strData = append(strData, 0)

	var data []byte
	data = append(data, 5, 0, 0)
	data = append(data, 0x05)
	data = append(data, uleb(1)...)
	data = append(data, u32le(0)...)
	data = append(data, 0)

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(strData, "", "")

	require.NoError(t, macro.Walk(c, data, idx, pool, macro.Hooks{}, 0))
	_, err = pool.Finalize()
	require.NoError(t, err)

	require.NoError(t, macro.Walk(c, data, idx, pool, macro.Hooks{}, 1))

	newOff, _, err := pool.Lookup(0, false)
	require.NoError(t, err)
	gotOff := binary.LittleEndian.Uint32(data[len(data)-5 : len(data)-1])
	assert.Equal(t, newOff, gotOff)
}

func TestWalkDefineStrxResolvesThroughHook(t *testing.T) {
	var strData []byte
	strData = append(strData, []byte("Y")...)
	strData = append(strData, 0)

	var data []byte
	data = append(data, 5, 0, 0)
	data = append(data, 0x08) // define_strx
	data = append(data, uleb(4)...)
	data = append(data, uleb(2)...) // strx index 2
	data = append(data, 0)

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(strData, "", "")

	var resolvedIdx uint32
	hooks := macro.Hooks{
		ResolveStrx: func(subsectionOffset int, strxIndex uint32) (uint32, error) {
			resolvedIdx = strxIndex
			return 0, nil
		},
	}

	require.NoError(t, macro.Walk(c, data, idx, pool, hooks, 0))
	assert.Equal(t, uint32(2), resolvedIdx)

	_, err = pool.Finalize()
	require.NoError(t, err)
	_, _, err = pool.Lookup(0, false)
	assert.NoError(t, err)
}

func TestWalkLineOffsetRewrittenInPhase1(t *testing.T) {
	var data []byte
	data = append(data, 5, 0, 0x02) // version 5, flags: debug_line_offset
	data = append(data, u32le(100)...)
	data = append(data, 0) // no ops

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(nil, "", "")

	hooks := macro.Hooks{
		TranslateLineOffset: func(old int) (int, error) {
			assert.Equal(t, 100, old)
			return 200, nil
		},
	}

	require.NoError(t, macro.Walk(c, data, idx, pool, hooks, 1))
	got := binary.LittleEndian.Uint32(data[3:7])
	assert.Equal(t, uint32(200), got)
}
