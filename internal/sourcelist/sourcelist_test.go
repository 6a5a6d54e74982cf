package sourcelist_test

import (
	"bytes"
	"testing"

	"github.com/Manu343726/debugedit/internal/sourcelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDirAddsTrailingSlash(t *testing.T) {
	var buf bytes.Buffer
	s := sourcelist.New(&buf)

	require.NoError(t, s.WriteDir("/build/src/pkg"))
	assert.Equal(t, "/build/src/pkg/\x00", buf.String())
}

func TestWriteDirEmptyBecomesRoot(t *testing.T) {
	var buf bytes.Buffer
	s := sourcelist.New(&buf)

	require.NoError(t, s.WriteDir(""))
	assert.Equal(t, "/\x00", buf.String())
}

func TestWriteDirAlreadyTerminated(t *testing.T) {
	var buf bytes.Buffer
	s := sourcelist.New(&buf)

	require.NoError(t, s.WriteDir("/a/b/"))
	assert.Equal(t, "/a/b/\x00", buf.String())
}

func TestWriteFileNoTrailingSlashAdded(t *testing.T) {
	var buf bytes.Buffer
	s := sourcelist.New(&buf)

	require.NoError(t, s.WriteFile("/a/b/main.c"))
	assert.Equal(t, "/a/b/main.c\x00", buf.String())
}

func TestMultipleWritesAccumulate(t *testing.T) {
	var buf bytes.Buffer
	s := sourcelist.New(&buf)

	require.NoError(t, s.WriteDir("/a"))
	require.NoError(t, s.WriteFile("/a/x.c"))
	assert.Equal(t, "/a/\x00/a/x.c\x00", buf.String())
}

type shortWriter struct {
	chunks [][]byte
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.chunks = append(w.chunks, append([]byte(nil), p[:1]...))
	return 1, nil
}

func TestWriteRetriesOnShortWrite(t *testing.T) {
	w := &shortWriter{}
	s := sourcelist.New(w)

	require.NoError(t, s.WriteFile("ab"))

	var got []byte
	for _, c := range w.chunks {
		got = append(got, c...)
	}
	assert.Equal(t, "ab\x00", string(got))
}
