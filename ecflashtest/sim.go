// Package ecflashtest implements a simulated Embedded Controller channel so
// the rest of ecflash can be exercised without privileged hardware access.
package ecflashtest

const (
	regionSize = 64 * 1024
	sectorSize = 1024
)

// fcommandTCPC is the FCommand code ecflash.ReadTCPCRegister issues;
// duplicated here since this package can't import ecflash's unexported
// constant of the same name.
const fcommandTCPC = 0x76

// SPI command bytes the simulator understands; kept in sync with
// ecflash's private spi.go constants since this package can't import
// unexported identifiers from it.
const (
	spiCmdReadStatus     = 0x05
	spiCmdWriteEnable    = 0x06
	spiCmdWriteDisable   = 0x04
	spiCmdFastRead       = 0x0B
	spiCmdAAIWordProgram = 0xAD
	spiCmdSectorErase    = 0xD7
	spiCmdChipErase      = 0x60
)

const (
	ctrlEnterFollowMode = 1
	ctrlSPICmd          = 2
	ctrlSPIWrite        = 3
	ctrlSPIRead         = 4
	ctrlExitFollowMode  = 5
	ctrlStart           = 0xDC
	ctrlStopPre         = 0x95
	ctrlStopFinal       = 0xFC
	startAck            = 51

	sizeParam       = 0xE5
	projectStrIndex = 0x92
	versionStrIndex = 0x93
)

type pending int

const (
	pendingNone pending = iota
	pendingSPICmd
	pendingSPIWrite
	pendingSPIRead
)

// Sim is a software stand-in for an Embedded Controller's command/status
// channel, backing a flat in-memory SPI NOR flash image. It implements
// ecflash.Channel without any of the real struct types being imported here,
// so ecflashtest has no import-cycle dependency on ecflash: it's exercised
// purely through the interface's method set.
type Sim struct {
	flash   []byte
	project string
	version string

	followMode bool
	pend       pending
	op         byte
	writeBuf   []byte
	readPtr    int
	writePtr   int
	aaiPrimed  bool
	wel        bool

	pendingStart   bool
	pendingStopPre bool
	Started        bool
	Stopped        bool

	// StartAck is the byte Read returns in response to a pending ctrlStart,
	// defaulting to startAck (the EC's real accept value). Set it to
	// anything else to simulate the EC refusing ISP mode entry.
	StartAck byte

	tcpcRegs map[byte]uint16
}

// New returns a simulated EC channel backing a flash of size bytes,
// initialized to all 0xFF (the erased state), reporting project/version
// strings for GetStr(0x92)/GetStr(0x93).
func New(size int, project, version string) *Sim {
	flash := make([]byte, size)
	for i := range flash {
		flash[i] = 0xFF
	}
	return &Sim{flash: flash, project: project, version: version, StartAck: startAck, tcpcRegs: map[byte]uint16{}}
}

// Flash returns the simulated flash contents, for test assertions.
func (s *Sim) Flash() []byte { return s.flash }

// FollowMode reports whether the simulated EC is currently relaying SPI
// traffic, for asserting that failed operations clean up after themselves.
func (s *Sim) FollowMode() bool { return s.followMode }

// WriteEnabled reports the simulated flash's write-enable latch, for the
// same cleanup assertions.
func (s *Sim) WriteEnabled() bool { return s.wel }

// SetTCPCRegister configures the 16-bit value ReadTCPCRegister-style
// FCommand calls will return for reg.
func (s *Sim) SetTCPCRegister(reg byte, value uint16) { s.tcpcRegs[reg] = value }

func (s *Sim) Sts() (byte, error) { return 1, nil }

func (s *Sim) CanRead() (bool, error) { return true, nil }

func (s *Sim) CanWrite() (bool, error) { return true, nil }

func (s *Sim) Flush() error { return nil }

func (s *Sim) Cmd(b byte) error {
	if !s.followMode {
		switch b {
		case ctrlEnterFollowMode:
			s.followMode = true
		case ctrlStart:
			s.pendingStart = true
		case ctrlStopPre:
			s.pendingStopPre = true
		case ctrlStopFinal:
			if s.pendingStopPre {
				s.Stopped = true
				s.pendingStopPre = false
			}
		}
		return nil
	}

	switch s.pend {
	case pendingNone:
		switch b {
		case ctrlSPICmd:
			s.pend = pendingSPICmd
		case ctrlSPIWrite:
			s.pend = pendingSPIWrite
		case ctrlSPIRead:
			s.pend = pendingSPIRead
		case ctrlExitFollowMode:
			s.followMode = false
		}
	case pendingSPICmd:
		s.dispatch(b)
		s.pend = pendingNone
	case pendingSPIWrite:
		s.writeBuf = append(s.writeBuf, b)
		s.pend = pendingNone
		s.consumeWrite()
	}
	return nil
}

func (s *Sim) Write(b byte) error {
	// Only Flasher's spi primitives issue raw Cmd/Read traffic; higher level
	// GetParam/SetParam/GetStr below don't round-trip through Write, so this
	// exists only to satisfy the Channel interface.
	return nil
}

func (s *Sim) Read() (byte, error) {
	if s.pendingStart {
		s.pendingStart = false
		s.Started = s.StartAck == startAck
		return s.StartAck, nil
	}
	if s.pend != pendingSPIRead {
		return 0, nil
	}
	s.pend = pendingNone
	switch s.op {
	case spiCmdReadStatus:
		var v byte
		if s.wel {
			v |= 2
		}
		return v, nil
	case spiCmdFastRead:
		b := s.flash[s.readPtr%len(s.flash)]
		s.readPtr++
		return b, nil
	}
	return 0, nil
}

// dispatch handles a newly selected SPI command byte.
func (s *Sim) dispatch(cmd byte) {
	s.op = cmd
	s.writeBuf = s.writeBuf[:0]
	switch cmd {
	case spiCmdWriteEnable:
		s.wel = true
	case spiCmdWriteDisable:
		// Write Disable also exits AAI mode, so the next AAI program
		// command must carry a fresh 3-byte address.
		s.wel = false
		s.aaiPrimed = false
	case spiCmdChipErase:
		for i := range s.flash {
			s.flash[i] = 0xFF
		}
	}
}

// consumeWrite applies the just-appended write byte once enough bytes have
// accumulated for the active SPI command, mirroring the exact byte counts
// Flasher emits for each primitive.
func (s *Sim) consumeWrite() {
	switch s.op {
	case spiCmdSectorErase:
		if len(s.writeBuf) == 3 {
			sector, block := int(s.writeBuf[0]), int(s.writeBuf[1])
			off := sector*regionSize + block*sectorSize
			for i := off; i < off+sectorSize && i < len(s.flash); i++ {
				s.flash[i] = 0xFF
			}
			s.writeBuf = s.writeBuf[:0]
		}
	case spiCmdFastRead:
		if len(s.writeBuf) == 4 {
			s.readPtr = int(s.writeBuf[0]) * regionSize
			s.writeBuf = s.writeBuf[:0]
		}
	case spiCmdAAIWordProgram:
		want := 2
		if !s.aaiPrimed {
			want = 5
		}
		if len(s.writeBuf) == want {
			if !s.aaiPrimed {
				s.writePtr = int(s.writeBuf[0]) * regionSize
				s.writeWord(s.writeBuf[3], s.writeBuf[4])
				s.aaiPrimed = true
			} else {
				s.writeWord(s.writeBuf[0], s.writeBuf[1])
			}
			s.writeBuf = s.writeBuf[:0]
		}
	}
}

func (s *Sim) writeWord(lo, hi byte) {
	if s.writePtr+1 < len(s.flash) {
		s.flash[s.writePtr] = lo
		s.flash[s.writePtr+1] = hi
	}
	s.writePtr += 2
}

func (s *Sim) GetParam(param byte) (byte, error) {
	if param == sizeParam && len(s.flash) >= 128*1024 {
		return 0x80, nil
	}
	return 0, nil
}

func (s *Sim) SetParam(param, value byte) error {
	return nil
}

// FCommand models only the TCPC register relay ReadTCPCRegister drives:
// buf[1] selects the register and the response is written back into
// buf[2]/buf[3] as low/high bytes, matching the real EC's response
// layout.
func (s *Sim) FCommand(cmd, dat byte, buf []byte) error {
	if cmd == fcommandTCPC && len(buf) >= 4 {
		v := s.tcpcRegs[buf[1]]
		buf[2] = byte(v)
		buf[3] = byte(v >> 8)
	}
	return nil
}

func (s *Sim) GetStr(index byte) (string, error) {
	switch index {
	case projectStrIndex:
		return s.project, nil
	case versionStrIndex:
		return s.version, nil
	}
	return "", nil
}
