package buildid_test

import (
	"testing"

	"github.com/Manu343726/debugedit/internal/buildid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDeterministic(t *testing.T) {
	e1 := buildid.New("")
	e1.Write([]byte("hello"))
	s1 := e1.Sum()

	e2 := buildid.New("")
	e2.Write([]byte("hello"))
	s2 := e2.Sum()

	assert.Equal(t, s1, s2)
}

func TestSumDiffersWithSeed(t *testing.T) {
	e1 := buildid.New("")
	e1.Write([]byte("hello"))
	s1 := e1.Sum()

	e2 := buildid.New("seed")
	e2.Write([]byte("hello"))
	s2 := e2.Sum()

	assert.NotEqual(t, s1, s2)
}

func TestSumDiffersOnContent(t *testing.T) {
	e1 := buildid.New("")
	e1.Write([]byte("hello"))
	s1 := e1.Sum()

	e2 := buildid.New("")
	e2.Write([]byte("world"))
	s2 := e2.Sum()

	assert.NotEqual(t, s1, s2)
}

func TestZeroDescriptorClampsAt16(t *testing.T) {
	desc := make([]byte, 20)
	for i := range desc {
		desc[i] = 0xff
	}
	buildid.ZeroDescriptor(desc)

	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(0), desc[i])
	}
	for i := 16; i < 20; i++ {
		assert.Equal(t, byte(0xff), desc[i])
	}
}

func TestZeroDescriptorShorterThan16(t *testing.T) {
	desc := []byte{0xff, 0xff, 0xff, 0xff}
	buildid.ZeroDescriptor(desc)
	assert.Equal(t, []byte{0, 0, 0, 0}, desc)
}

func TestApplyTruncatesToDescriptorSize(t *testing.T) {
	sum := [buildid.CanonicalSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	desc := make([]byte, 4)

	require.NoError(t, buildid.Apply(desc, sum))
	assert.Equal(t, []byte{1, 2, 3, 4}, desc)
}

func TestApplyRejectsEmptyDescriptor(t *testing.T) {
	var sum [buildid.CanonicalSize]byte
	err := buildid.Apply(nil, sum)
	assert.Error(t, err)
}

func TestFormatHexLowercaseNoSeparators(t *testing.T) {
	desc := []byte{0xde, 0xad, 0xbe, 0xef}
	assert.Equal(t, "deadbeef", buildid.FormatHex(desc))
}
