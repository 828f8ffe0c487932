package ecflash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/system76/ecflash/ecflashtest"
)

func TestReadTCPCRegister(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	sim.SetTCPCRegister(0x10, 0xBEEF)

	v, err := ReadTCPCRegister(sim, 0x10)
	require.NoError(t, err)
	require.EqualValues(t, 0xBEEF, v)
}
