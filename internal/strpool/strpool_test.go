package strpool_test

import (
	"testing"

	"github.com/Manu343726/debugedit/internal/strpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSection(strs ...string) (data []byte, offsets []uint32) {
	for _, s := range strs {
		offsets = append(offsets, uint32(len(data)))
		data = append(data, []byte(s)...)
		data = append(data, 0)
	}
	return
}

func TestRegisterExistingAndFinalize(t *testing.T) {
	data, offs := buildSection("/build/src/pkg/a.c", "unrelated")
	p := strpool.New(data, "", "")

	require.NoError(t, p.RegisterExisting(offs[0]))
	require.NoError(t, p.RegisterExisting(offs[1]))

	buf, err := p.Finalize()
	require.NoError(t, err)
	assert.Contains(t, string(buf), "/build/src/pkg/a.c\x00")
	assert.Contains(t, string(buf), "unrelated\x00")

	newOff0, dummy, err := p.Lookup(offs[0], false)
	require.NoError(t, err)
	assert.False(t, dummy)
	assert.Equal(t, "/build/src/pkg/a.c", cstr(buf, newOff0))
}

func TestRegisterReplacedRewritesPrefix(t *testing.T) {
	data, offs := buildSection("/build/src/pkg", "/build/elsewhere")
	p := strpool.New(data, "/build/src", "/usr/src")

	replaced, err := p.RegisterReplaced(offs[0])
	require.NoError(t, err)
	assert.True(t, replaced)

	replaced, err = p.RegisterReplaced(offs[1])
	require.NoError(t, err)
	assert.False(t, replaced)

	buf, err := p.Finalize()
	require.NoError(t, err)

	newOff, _, err := p.Lookup(offs[0], false)
	require.NoError(t, err)
	assert.Equal(t, "/usr/src/pkg", cstr(buf, newOff))

	newOff2, _, err := p.Lookup(offs[1], false)
	require.NoError(t, err)
	assert.Equal(t, "/build/elsewhere", cstr(buf, newOff2))
}

func TestRegisterReplacedIdempotent(t *testing.T) {
	data, offs := buildSection("/build/src/pkg")
	p := strpool.New(data, "/build/src", "/usr/src")

	r1, err := p.RegisterReplaced(offs[0])
	require.NoError(t, err)
	r2, err := p.RegisterReplaced(offs[0])
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestFinalizeDeduplicates(t *testing.T) {
	data, offs := buildSection("same", "same")
	p := strpool.New(data, "", "")
	require.NoError(t, p.RegisterExisting(offs[0]))
	require.NoError(t, p.RegisterExisting(offs[1]))

	buf, err := p.Finalize()
	require.NoError(t, err)

	off0, _, _ := p.Lookup(offs[0], false)
	off1, _, _ := p.Lookup(offs[1], false)
	assert.Equal(t, off0, off1)
	assert.Equal(t, "same\x00", string(buf))
}

func TestLookupAcceptMissingUsesDummy(t *testing.T) {
	data, offs := buildSection("reachable")
	p := strpool.New(data, "", "")
	require.NoError(t, p.RegisterExisting(offs[0]))
	require.NoError(t, p.EnsureDummy())

	buf, err := p.Finalize()
	require.NoError(t, err)

	off, usedDummy, err := p.Lookup(9999, true)
	require.NoError(t, err)
	assert.True(t, usedDummy)
	assert.Equal(t, strpool.DummyEntryName, cstr(buf, off))
}

func TestLookupMissingWithoutAcceptFails(t *testing.T) {
	data, offs := buildSection("reachable")
	p := strpool.New(data, "", "")
	require.NoError(t, p.RegisterExisting(offs[0]))
	_, err := p.Finalize()
	require.NoError(t, err)

	_, _, err = p.Lookup(9999, false)
	assert.Error(t, err)
}

func cstr(buf []byte, off uint32) string {
	end := off
	for end < uint32(len(buf)) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}
