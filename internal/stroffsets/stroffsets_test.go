package stroffsets_test

import (
	"encoding/binary"
	"testing"

	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/internal/stroffsets"
	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStrOffsetsUnit(entries []uint32) []byte {
	body := make([]byte, 4*len(entries))
	for i, e := range entries {
		binary.LittleEndian.PutUint32(body[i*4:], e)
	}
	unitLength := 2 + 2 + len(body)

	var buf []byte
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(unitLength))
	buf = append(buf, tmp4[:]...)
	var ver [2]byte
	binary.LittleEndian.PutUint16(ver[:], 5)
	buf = append(buf, ver[:]...)
	buf = append(buf, 0, 0) // padding
	buf = append(buf, body...)
	return buf
}

func buildStrSection(strs ...string) (data []byte, offsets []uint32) {
	for _, s := range strs {
		offsets = append(offsets, uint32(len(data)))
		data = append(data, []byte(s)...)
		data = append(data, 0)
	}
	return
}

func TestRewriteTranslatesEntries(t *testing.T) {
	strData, offs := buildStrSection("alpha", "beta")
	pool := strpool.New(strData, "", "")
	require.NoError(t, pool.RegisterExisting(offs[0]))
	require.NoError(t, pool.RegisterExisting(offs[1]))
	_, err := pool.Finalize()
	require.NoError(t, err)

	data := buildStrOffsetsUnit([]uint32{offs[1], offs[0]})

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)

	require.NoError(t, stroffsets.Rewrite(c, data, idx, pool, nil))

	newOff0, _, err := pool.Lookup(offs[0], false)
	require.NoError(t, err)
	newOff1, _, err := pool.Lookup(offs[1], false)
	require.NoError(t, err)

	gotFirst := binary.LittleEndian.Uint32(data[8:12])
	gotSecond := binary.LittleEndian.Uint32(data[12:16])
	assert.Equal(t, newOff1, gotFirst)
	assert.Equal(t, newOff0, gotSecond)
}

func TestRewriteUsesDummyForMissingEntry(t *testing.T) {
	strData, offs := buildStrSection("reachable")
	pool := strpool.New(strData, "", "")
	require.NoError(t, pool.RegisterExisting(offs[0]))
	require.NoError(t, pool.EnsureDummy())
	buf, err := pool.Finalize()
	require.NoError(t, err)

	data := buildStrOffsetsUnit([]uint32{9999})

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)

	var warned bool
	require.NoError(t, stroffsets.Rewrite(c, data, idx, pool, func(tableOffset int64, entryIndex int, origOffset uint32) {
		warned = true
		assert.Equal(t, uint32(9999), origOffset)
	}))
	assert.True(t, warned)

	dummyOff := binary.LittleEndian.Uint32(data[8:12])
	end := dummyOff
	for end < uint32(len(buf)) && buf[end] != 0 {
		end++
	}
	assert.Equal(t, strpool.DummyEntryName, string(buf[dummyOff:end]))
}

func TestRewriteRejectsWrongVersion(t *testing.T) {
	body := make([]byte, 4)
	unitLength := 2 + 2 + len(body)
	var buf []byte
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(unitLength))
	buf = append(buf, tmp4[:]...)
	var ver [2]byte
	binary.LittleEndian.PutUint16(ver[:], 4)
	buf = append(buf, ver[:]...)
	buf = append(buf, 0, 0)
	buf = append(buf, body...)

	c := bitcodec.New(binary.LittleEndian)
	idx, err := reloc.Build(reloc.REL, 0, nil)
	require.NoError(t, err)
	pool := strpool.New(nil, "", "")
	_, _ = pool.Finalize()

	err = stroffsets.Rewrite(c, buf, idx, pool, nil)
	assert.Error(t, err)
}
