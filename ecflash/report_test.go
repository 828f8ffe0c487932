package ecflash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuery_stableOnFirstTry(t *testing.T) {
	calls := 0
	v, err := Query("test", func() (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 2, calls, "a stable value still costs two reads to confirm agreement")
}

func TestQuery_stabilizesAfterRetries(t *testing.T) {
	seq := []int{1, 2, 2, 2}
	i := 0
	next := func() (int, error) {
		v := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return v, nil
	}
	v, err := Query("test", next)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestQuery_neverStabilizes(t *testing.T) {
	i := 0
	next := func() (int, error) {
		i++
		return i, nil
	}
	_, err := Query("test", next)
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	bindings := []Binding{
		{Label: "image", EC: NewFileEC([]byte("PRJ:galp3-b$VER:0.1.0$"))},
	}
	var lines []string
	err := Report(bindings, func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "galp3-b")
	require.Contains(t, lines[0], "0.1.0")
}
