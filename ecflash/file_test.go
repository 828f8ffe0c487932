package ecflash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileEC(t *testing.T) {
	data := []byte("junk\x00PRJ:galp3-b$VER:  1.2.3$trailer")
	ec := NewFileEC(data)

	size, err := ec.Size()
	require.NoError(t, err)
	require.Equal(t, len(data), size)

	project, err := ec.Project()
	require.NoError(t, err)
	require.Equal(t, "galp3-b", project)

	version, err := ec.Version()
	require.NoError(t, err)
	require.Equal(t, "1.2.3", version)
}

func TestFileEC_missingKey(t *testing.T) {
	ec := NewFileEC([]byte("no metadata here"))
	project, err := ec.Project()
	require.NoError(t, err)
	require.Equal(t, "", project)
}

func TestScanKeyValue_selfOverlappingKey(t *testing.T) {
	// "AAB" contains a false start ("A" matching key[0] twice) before the
	// real "AB" match; a scanner that doesn't re-check the mismatching byte
	// against key[0] loses alignment here and never finds the key at all.
	got := scanKeyValue([]byte("AAB:x$"), []byte("AB"))
	require.Equal(t, ":x", got)
}

func TestScanKeyValue_unterminated(t *testing.T) {
	got := scanKeyValue([]byte("PRJ:galp3-b"), []byte("PRJ:"))
	require.Equal(t, "galp3-b", got)
}

func TestFileEC_identifyImage(t *testing.T) {
	data := make([]byte, 65536)
	for i := range data {
		data[i] = 0
	}
	copy(data[0x100:], []byte("PRJ:GALP5$"))
	copy(data[0x200:], []byte("VER: 1.07$"))
	ec := NewFileEC(data)

	size, err := ec.Size()
	require.NoError(t, err)
	require.Equal(t, 65536, size)

	project, err := ec.Project()
	require.NoError(t, err)
	require.Equal(t, "GALP5", project)

	version, err := ec.Version()
	require.NoError(t, err)
	require.Equal(t, "1.07", version)
}
