package ecflash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/system76/ecflash/ecflashtest"
)

// stuckChannel always reports the SPI status register as busy, simulating
// an EC that never finishes a write/erase cycle. Every command byte is
// recorded so tests can assert on the cleanup traffic a failed poll emits.
type stuckChannel struct {
	cmds []byte
}

func (c *stuckChannel) Sts() (byte, error)                       { return 1, nil }
func (c *stuckChannel) CanRead() (bool, error)                   { return true, nil }
func (c *stuckChannel) CanWrite() (bool, error)                  { return true, nil }
func (c *stuckChannel) Flush() error                             { return nil }
func (c *stuckChannel) Cmd(b byte) error                         { c.cmds = append(c.cmds, b); return nil }
func (c *stuckChannel) Write(b byte) error                       { return nil }
func (c *stuckChannel) Read() (byte, error)                      { return 1, nil }
func (c *stuckChannel) GetParam(p byte) (byte, error)            { return 0, nil }
func (c *stuckChannel) SetParam(p, v byte) error                 { return nil }
func (c *stuckChannel) FCommand(cmd, dat byte, buf []byte) error { return nil }
func (c *stuckChannel) GetStr(index byte) (string, error)        { return "", nil }

func TestFlasher_spiWait_timesOutOnWedgedEC(t *testing.T) {
	ch := &stuckChannel{}
	f := &Flasher{channel: ch, size: 64 * 1024, pollTimeout: 20 * time.Millisecond}
	err := f.spiWait()
	require.ErrorIs(t, err, ErrTimeout)
	require.NotEmpty(t, ch.cmds)
	require.EqualValues(t, ctrlExitFollowMode, ch.cmds[len(ch.cmds)-1],
		"a timed-out status poll must still exit follow mode")
}

func TestFlasher_spiWriteEnable_timeoutExitsFollowMode(t *testing.T) {
	ch := &stuckChannel{}
	f := &Flasher{channel: ch, size: 64 * 1024, pollTimeout: 20 * time.Millisecond}
	err := f.spiWriteEnable()
	require.ErrorIs(t, err, ErrTimeout)
	require.EqualValues(t, ctrlExitFollowMode, ch.cmds[len(ch.cmds)-1])
}

// failOnceChannel wraps a Sim and fails a single Cmd call, then recovers,
// modeling a transient channel error in the middle of an ISP sequence so
// the error-path cleanup has a working channel to run over.
type failOnceChannel struct {
	*ecflashtest.Sim
	failAt int
	n      int
}

func (c *failOnceChannel) Cmd(b byte) error {
	c.n++
	if c.n == c.failAt {
		return ErrTimeout
	}
	return c.Sim.Cmd(b)
}

func TestFlasher_Read_abortExitsFollowMode(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	f, err := NewFlasher(sim)
	require.NoError(t, err)

	buf, err := f.Read(func(int) bool { return false })
	require.ErrorIs(t, err, ErrAborted)
	require.Len(t, buf, 1024, "the abort fires after the first block")
	require.False(t, sim.FollowMode(), "an aborted read must not leave follow mode on")
}

func TestFlasher_Erase_failureLeavesChannelClean(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	ch := &failOnceChannel{Sim: sim, failAt: 16}
	f, err := NewFlasher(ch)
	require.NoError(t, err)

	require.Error(t, f.Erase(nil))
	require.False(t, sim.FollowMode(), "a failed erase must exit follow mode")
	require.False(t, sim.WriteEnabled(), "a failed erase must clear the write-enable latch")
}

func TestFlasher_Write_failureLeavesChannelClean(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	ch := &failOnceChannel{Sim: sim, failAt: 40}
	f, err := NewFlasher(ch)
	require.NoError(t, err)

	err = f.Write(make([]byte, 2048), nil)
	require.Error(t, err)
	require.False(t, sim.FollowMode(), "a failed write must exit follow mode")
	require.False(t, sim.WriteEnabled(), "a failed write must clear the write-enable latch")
}

func TestFlasher_EraseThenRead(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	// Pollute the simulated flash so erase has something to prove.
	flash := sim.Flash()
	for i := range flash {
		flash[i] = 0x42
	}

	f, err := NewFlasher(sim)
	require.NoError(t, err)
	require.Equal(t, 64*1024, f.Size())

	require.NoError(t, f.Erase(nil))
	data, err := f.Read(nil)
	require.NoError(t, err)
	for i, b := range data {
		require.Equalf(t, byte(0xFF), b, "offset %d not erased", i)
	}
}

func TestFlasher_WriteThenRead(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	f, err := NewFlasher(sim)
	require.NoError(t, err)

	image := make([]byte, 4096)
	for i := range image {
		image[i] = byte(i)
	}

	require.NoError(t, f.Write(image, nil))
	data, err := f.Read(nil)
	require.NoError(t, err)
	require.Equal(t, image, data[:len(image)])
	for i := len(image); i < len(data); i++ {
		require.Equalf(t, byte(0xFF), data[i], "offset %d should be padding", i)
	}
}

func TestFlasher_WriteThenRead_multiRegion(t *testing.T) {
	sim := ecflashtest.New(128*1024, "galp3-b", "0.1.0")
	f, err := NewFlasher(sim)
	require.NoError(t, err)
	require.Equal(t, 128*1024, f.Size())

	// Spanning both 64KiB regions exercises the per-region address reseed:
	// the second region's first program command must carry fresh address
	// bytes, and the simulator must not mistake them for data.
	image := make([]byte, 128*1024)
	for i := range image {
		image[i] = byte(i * 7)
	}

	require.NoError(t, f.Write(image, nil))
	data, err := f.Read(nil)
	require.NoError(t, err)
	require.Equal(t, image, data)
}

func TestFlasher_Flash(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	flash := sim.Flash()
	for i := range flash {
		flash[i] = 0x11
	}

	f, err := NewFlasher(sim)
	require.NoError(t, err)

	image := []byte("firmware payload")
	var progressed []int
	require.NoError(t, f.Flash(image, func(n int) bool { progressed = append(progressed, n); return true }, nil))

	require.True(t, sim.Started)
	require.True(t, sim.Stopped)
	require.NotEmpty(t, progressed)

	data := sim.Flash()
	require.Equal(t, image, data[:len(image)])
	for i := len(image); i < len(data); i++ {
		require.Equalf(t, byte(0xFF), data[i], "offset %d should be padding", i)
	}
}

func TestFlasher_Flash_dumps(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	flash := sim.Flash()
	for i := range flash {
		flash[i] = 0x11
	}

	f, err := NewFlasher(sim)
	require.NoError(t, err)

	image := []byte("firmware payload")
	var original, erased, written []byte
	dumps := &FlashDumps{
		Original: func(b []byte) error { original = append([]byte(nil), b...); return nil },
		Erased:   func(b []byte) error { erased = append([]byte(nil), b...); return nil },
		Written:  func(b []byte) error { written = append([]byte(nil), b...); return nil },
	}
	require.NoError(t, f.Flash(image, nil, dumps))

	require.Equal(t, byte(0x11), original[0], "original dump should capture the pre-erase contents")
	for _, b := range erased {
		require.Equal(t, byte(0xFF), b, "erased dump should capture the post-erase contents")
	}
	require.Equal(t, image, written[:len(image)], "written dump should capture the post-program contents")
}

func TestFlasher_Flash_oversizedImageRejected(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	f, err := NewFlasher(sim)
	require.NoError(t, err)

	oversized := make([]byte, 64*1024+1)
	err = f.Flash(oversized, nil, nil)
	require.ErrorIs(t, err, ErrInvalidLength)
	require.False(t, sim.Started, "Start must not be issued before the length check")
}

func TestFlasher_Start_rejected(t *testing.T) {
	sim := ecflashtest.New(64*1024, "galp3-b", "0.1.0")
	sim.StartAck = 0 // EC refuses ISP mode entry.

	f, err := NewFlasher(sim)
	require.NoError(t, err)
	ack, err := f.Start()
	require.ErrorIs(t, err, ErrStartRejected)
	require.EqualValues(t, 0, ack)
	require.False(t, sim.Started)
}

func TestFlasher_primarySizeDetection(t *testing.T) {
	small, err := NewFlasher(ecflashtest.New(64*1024, "p", "v"))
	require.NoError(t, err)
	require.Equal(t, 64*1024, small.Size())

	big, err := NewFlasher(ecflashtest.New(128*1024, "p", "v"))
	require.NoError(t, err)
	require.Equal(t, 128*1024, big.Size())
}
