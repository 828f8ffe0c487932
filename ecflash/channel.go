package ecflash

import (
	"time"
)

// timeout is the loop-count budget used by the busy-polling helpers below.
// These are sub-microsecond port accesses; a wall-clock sleep between
// iterations would be far coarser than the EC's actual response latency,
// so the helpers spin a fixed number of times instead of sleeping.
const timeout = 100000

// DefaultPollTimeout bounds the wall-clock time spiWait-style loops in
// Flasher are allowed to spend polling a wedged EC, on top of the
// loop-count budget on raw channel I/O.
const DefaultPollTimeout = 5 * time.Second

// Channel is the half-duplex request/response transport to an Embedded
// Controller. Implementations do no locking of their own: a single Channel
// is owned by exactly one Flasher or query at a time.
type Channel interface {
	// Sts reads the raw status byte.
	Sts() (byte, error)
	// CanRead reports whether the output buffer holds a byte the host may
	// read.
	CanRead() (bool, error)
	// CanWrite reports whether the input buffer is free for the host to
	// write into.
	CanWrite() (bool, error)
	// Flush drains any stale output-buffer bytes left over from a previous
	// session.
	Flush() error
	// Cmd sends a command byte, waiting for the input buffer to drain both
	// before and after.
	Cmd(b byte) error
	// Write sends a data byte, waiting for the input buffer to drain both
	// before and after.
	Write(b byte) error
	// Read waits for and returns a data byte from the output buffer.
	Read() (byte, error)
	// GetParam issues a 0x80 parameter read.
	GetParam(param byte) (byte, error)
	// SetParam issues a 0x81 parameter write.
	SetParam(param, value byte) error
	// FCommand issues an indirect sub-device transaction: cmd selects the
	// target device register bank, dat is written first, and up to
	// len(buf) response bytes are read back into buf.
	FCommand(cmd, dat byte, buf []byte) error
	// GetStr reads a '$'-terminated ASCII string identified by index,
	// stopping at the first '$' byte or after 16 bytes.
	GetStr(index byte) (string, error)
}

// PortChannel is a Channel backed by two real x86 I/O ports.
type PortChannel struct {
	DataPort uint16
	CmdPort  uint16
}

// NewPortChannel validates ring-3 I/O privilege and returns a Channel over
// the given data/command port pair.
func NewPortChannel(dataPort, cmdPort uint16) (*PortChannel, error) {
	if err := acquirePrivilege(); err != nil {
		return nil, err
	}
	return &PortChannel{DataPort: dataPort, CmdPort: cmdPort}, nil
}

func (c *PortChannel) Sts() (byte, error) {
	return inb(c.CmdPort), nil
}

func (c *PortChannel) CanRead() (bool, error) {
	sts, err := c.Sts()
	if err != nil {
		return false, err
	}
	return sts&1 != 0, nil
}

func (c *PortChannel) CanWrite() (bool, error) {
	sts, err := c.Sts()
	if err != nil {
		return false, err
	}
	return sts&2 == 0, nil
}

// waitRead busy-polls until the output buffer holds a byte, or gives up
// after timeout iterations.
func (c *PortChannel) waitRead() error {
	for i := 0; i < timeout; i++ {
		ok, err := c.CanRead()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrTimeout
}

// waitWrite busy-polls until the input buffer is free, or gives up after
// timeout iterations.
func (c *PortChannel) waitWrite() error {
	for i := 0; i < timeout; i++ {
		ok, err := c.CanWrite()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrTimeout
}

func (c *PortChannel) Flush() error {
	for i := 0; i < timeout; i++ {
		ok, err := c.CanRead()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inb(c.DataPort)
	}
	return ErrTimeout
}

func (c *PortChannel) Cmd(b byte) error {
	if err := c.waitWrite(); err != nil {
		return err
	}
	outb(c.CmdPort, b)
	return c.waitWrite()
}

func (c *PortChannel) Write(b byte) error {
	if err := c.waitWrite(); err != nil {
		return err
	}
	outb(c.DataPort, b)
	return c.waitWrite()
}

func (c *PortChannel) Read() (byte, error) {
	if err := c.waitRead(); err != nil {
		return 0, err
	}
	return inb(c.DataPort), nil
}

func (c *PortChannel) GetParam(param byte) (byte, error) {
	if err := c.Cmd(0x80); err != nil {
		return 0, err
	}
	if err := c.Write(param); err != nil {
		return 0, err
	}
	return c.Read()
}

func (c *PortChannel) SetParam(param, value byte) error {
	if err := c.Cmd(0x81); err != nil {
		return err
	}
	if err := c.Write(param); err != nil {
		return err
	}
	return c.Write(value)
}

// FCommand drives an indirect sub-device transaction: it loads parameter
// 0xF9 with dat and parameters 0xFA..0xFD with buf[0..4], triggers the
// transaction through parameter 0xF8, reads the response back out of
// 0xFA..0xFD into buf, then clears 0xF8.
func (c *PortChannel) FCommand(cmd, dat byte, buf []byte) error {
	if err := c.SetParam(0xF9, dat); err != nil {
		return err
	}
	for i := 0; i < 4 && i < len(buf); i++ {
		if err := c.SetParam(0xFA+byte(i), buf[i]); err != nil {
			return err
		}
	}
	if err := c.SetParam(0xF8, cmd); err != nil {
		return err
	}
	for i := 0; i < 4 && i < len(buf); i++ {
		b, err := c.GetParam(0xFA + byte(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return c.SetParam(0xF8, 0)
}

// GetStr reads a '$'-terminated ASCII string identified by index, stopping
// at the first '$' byte or after 16 bytes.
func (c *PortChannel) GetStr(index byte) (string, error) {
	if err := c.Cmd(index); err != nil {
		return "", err
	}
	var out []byte
	for i := 0; i < 16; i++ {
		b, err := c.Read()
		if err != nil {
			return "", err
		}
		if b == '$' {
			break
		}
		out = append(out, b)
	}
	return string(out), nil
}
