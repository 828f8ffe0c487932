package ecflash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/system76/ecflash/ecflashtest"
)

func TestLiveEC_sizeClass(t *testing.T) {
	small := &LiveEC{Channel: ecflashtest.New(64*1024, "galp3-b", "0.1.0"), Primary: true}
	size, err := small.Size()
	require.NoError(t, err)
	require.Equal(t, 64*1024, size)

	big := &LiveEC{Channel: ecflashtest.New(128*1024, "galp3-b", "0.1.0"), Primary: true}
	size, err = big.Size()
	require.NoError(t, err)
	require.Equal(t, 128*1024, size)
}

func TestLiveEC_nonPrimaryAlwaysReportsSmall(t *testing.T) {
	ec := &LiveEC{Channel: ecflashtest.New(128*1024, "galp3-b", "0.1.0"), Primary: false}
	size, err := ec.Size()
	require.NoError(t, err)
	require.Equal(t, 64*1024, size)
}

func TestLiveEC_projectAndVersion(t *testing.T) {
	ec := &LiveEC{Channel: ecflashtest.New(64*1024, "galp3-b", "0.1.0"), Primary: true}
	project, err := ec.Project()
	require.NoError(t, err)
	require.Equal(t, "galp3-b", project)

	version, err := ec.Version()
	require.NoError(t, err)
	require.Equal(t, "1.0.1.0", version)
}
