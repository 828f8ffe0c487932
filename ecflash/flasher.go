package ecflash

import "time"

// Follow-mode control commands, issued directly on the EC channel (not
// through the SPI command vocabulary above).
const (
	ctrlEnterFollowMode = 1
	ctrlSPICmd          = 2
	ctrlSPIWrite        = 3
	ctrlSPIRead         = 4
	ctrlExitFollowMode  = 5
	ctrlStart           = 0xDC
	ctrlStopPre         = 0x95
	ctrlStopFinal       = 0xFC
)

// startAck is the byte the EC returns from a successful ctrlStart command.
const startAck = 51

// ProgressFunc is called periodically during a long-running Flasher
// operation with the number of bytes processed so far. Returning false
// requests early termination; only Read honors this, since Erase and Write
// (and Flash, which drives both) are never safe to abort mid-sequence once
// Start has been issued.
type ProgressFunc func(done int) (cont bool)

func noopProgress(int) bool { return true }

// Flasher drives the ISP state machine of an Embedded Controller attached
// to a SPI NOR flash chip: it owns a Channel for the duration of one
// program/erase/read session.
type Flasher struct {
	channel     Channel
	size        int
	pollTimeout time.Duration
}

// NewFlasher wraps channel and eagerly queries the EC for its flash size.
func NewFlasher(channel Channel) (*Flasher, error) {
	ec := &LiveEC{Channel: channel, Primary: true}
	size, err := ec.Size()
	if err != nil {
		return nil, err
	}
	return &Flasher{channel: channel, size: size, pollTimeout: DefaultPollTimeout}, nil
}

// Size returns the flash size cached at construction time.
func (f *Flasher) Size() int { return f.size }

func (f *Flasher) enterFollowMode() error {
	return f.channel.Cmd(ctrlEnterFollowMode)
}

func (f *Flasher) exitFollowMode() error {
	return f.channel.Cmd(ctrlExitFollowMode)
}

func (f *Flasher) spiCmd(cmd byte) error {
	if err := f.channel.Cmd(ctrlSPICmd); err != nil {
		return err
	}
	return f.channel.Cmd(cmd)
}

func (f *Flasher) spiWrite(value byte) error {
	if err := f.channel.Cmd(ctrlSPIWrite); err != nil {
		return err
	}
	return f.channel.Cmd(value)
}

func (f *Flasher) spiRead() (byte, error) {
	if err := f.channel.Cmd(ctrlSPIRead); err != nil {
		return 0, err
	}
	return f.channel.Read()
}

// inFollowMode runs fn with follow mode entered and issues the exit
// command on every return path, so a failing fn can't leave the EC
// relaying SPI traffic after its caller has moved on.
func (f *Flasher) inFollowMode(fn func() error) (err error) {
	if err = f.enterFollowMode(); err != nil {
		return err
	}
	defer func() {
		if exitErr := f.exitFollowMode(); err == nil {
			err = exitErr
		}
	}()
	return fn()
}

// spiWait enters follow mode, issues a status-register read, and spins
// until the busy bit clears, then leaves follow mode. This is the basic
// synchronization primitive every other SPI primitive below builds on.
// Follow mode is exited on every return path, including a poll timeout.
func (f *Flasher) spiWait() error {
	return f.inFollowMode(func() error {
		if err := f.spiCmd(spiCmdReadStatus); err != nil {
			return err
		}
		deadline := time.Now().Add(f.pollTimeout)
		for {
			v, err := f.spiRead()
			if err != nil {
				return err
			}
			if StatusRegister(v)&1 == 0 {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrTimeout
			}
		}
	})
}

// spiWriteEnable sets the write-enable latch and confirms it took effect
// before returning.
func (f *Flasher) spiWriteEnable() error {
	if err := f.spiWait(); err != nil {
		return err
	}
	return f.inFollowMode(func() error {
		if err := f.spiCmd(spiCmdWriteEnable); err != nil {
			return err
		}
		if err := f.enterFollowMode(); err != nil {
			return err
		}
		if err := f.spiCmd(spiCmdReadStatus); err != nil {
			return err
		}
		deadline := time.Now().Add(f.pollTimeout)
		for {
			v, err := f.spiRead()
			if err != nil {
				return err
			}
			if StatusRegister(v)&3 == 2 {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrTimeout
			}
		}
	})
}

// spiWriteDisable clears the write-enable latch and confirms it took
// effect before returning.
func (f *Flasher) spiWriteDisable() error {
	if err := f.spiWait(); err != nil {
		return err
	}
	return f.inFollowMode(func() error {
		if err := f.spiCmd(spiCmdWriteDisable); err != nil {
			return err
		}
		if err := f.enterFollowMode(); err != nil {
			return err
		}
		if err := f.spiCmd(spiCmdReadStatus); err != nil {
			return err
		}
		deadline := time.Now().Add(f.pollTimeout)
		for {
			v, err := f.spiRead()
			if err != nil {
				return err
			}
			if StatusRegister(v)&2 == 0 {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrTimeout
			}
		}
	})
}

// Start enters ISP mode and returns the EC's ack byte. Any ack other than
// startAck (51) means the EC refused the request; Start then returns that
// byte together with ErrStartRejected, and no further primitive should be
// issued.
func (f *Flasher) Start() (byte, error) {
	if err := f.channel.Cmd(ctrlStart); err != nil {
		return 0, err
	}
	ack, err := f.channel.Read()
	if err != nil {
		return 0, err
	}
	if ack != startAck {
		return ack, ErrStartRejected
	}
	return ack, nil
}

// Stop exits ISP mode. Once called the Flasher must not be used again.
func (f *Flasher) Stop() error {
	if err := f.channel.Cmd(ctrlStopPre); err != nil {
		return err
	}
	return f.channel.Cmd(ctrlStopFinal)
}

// Read streams the whole flash out, one 64KiB region at a time, reporting
// progress in 1KiB increments.
func (f *Flasher) Read(progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = noopProgress
	}
	buf := make([]byte, 0, f.size)
	regions := f.size / regionSize
	for sector := 0; sector < regions; sector++ {
		if _, err := NewSPIAddress(uint32(sector) * regionSize); err != nil {
			return nil, err
		}
		if err := f.spiWriteDisable(); err != nil {
			return nil, err
		}
		if err := f.spiWait(); err != nil {
			return nil, err
		}
		err := f.inFollowMode(func() error {
			if err := f.spiCmd(spiCmdFastRead); err != nil {
				return err
			}
			if err := f.spiWrite(byte(sector)); err != nil {
				return err
			}
			if err := f.spiWrite(0); err != nil {
				return err
			}
			if err := f.spiWrite(0); err != nil {
				return err
			}
			if err := f.spiWrite(0); err != nil {
				return err
			}
			for block := 0; block < blocksPerRegion; block++ {
				for i := 0; i < sectorSize; i++ {
					b, err := f.spiRead()
					if err != nil {
						return err
					}
					buf = append(buf, b)
				}
				if !progress(len(buf)) {
					return ErrAborted
				}
			}
			return nil
		})
		if err != nil {
			return buf, err
		}
		if err := f.spiWait(); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Erase wipes the whole flash one 1KiB sector at a time, reporting progress
// in 1KiB increments. Unlike Write, the write-enable latch is set fresh
// before every sector, not once per 64KiB region: the latch self-clears
// when a sector-erase cycle completes.
func (f *Flasher) Erase(progress ProgressFunc) (err error) {
	if progress == nil {
		progress = noopProgress
	}
	defer func() {
		if err != nil {
			// Best effort: a failed erase must not leave the write-enable
			// latch set behind it. The original error stands either way.
			f.spiWriteDisable()
		}
	}()
	done := 0
	regions := f.size / regionSize
	for sector := 0; sector < regions; sector++ {
		for block := 0; block < blocksPerRegion; block++ {
			offset := uint32(sector*regionSize + block*sectorSize)
			if _, err = NewSPIAddress(offset); err != nil {
				return err
			}
			if err = f.spiWriteEnable(); err != nil {
				return err
			}
			err = f.inFollowMode(func() error {
				if err := f.spiCmd(spiCmdSectorErase); err != nil {
					return err
				}
				if err := f.spiWrite(byte(sector)); err != nil {
					return err
				}
				if err := f.spiWrite(byte(block)); err != nil {
					return err
				}
				return f.spiWrite(0)
			})
			if err != nil {
				return err
			}
			if err = f.spiWait(); err != nil {
				return err
			}
			done += sectorSize
			progress(done)
		}
	}
	return nil
}

// Write programs buf onto the flash using the AAI (Auto Address Increment)
// word-program command, one 64KiB region at a time. buf shorter than the
// flash is implicitly padded with 0xFF.
//
// The write-enable latch is set once per region (unlike Erase), and the
// 3-byte start address is re-emitted at the beginning of every region even
// though AAI auto-increments within it: the write-disable at each region
// boundary takes the chip out of AAI mode, so the next region's first
// program command must carry a fresh address.
func (f *Flasher) Write(buf []byte, progress ProgressFunc) (err error) {
	if progress == nil {
		progress = noopProgress
	}
	if len(buf) > f.size {
		return ErrInvalidLength
	}
	defer func() {
		if err != nil {
			// Best effort: a failed program must not leave the write-enable
			// latch set or the chip in AAI mode. The original error stands
			// either way.
			f.spiWriteDisable()
		}
	}()
	get := func(i int) byte {
		if i < len(buf) {
			return buf[i]
		}
		return 0xFF
	}
	done := 0
	regions := f.size / regionSize
	for sector := 0; sector < regions; sector++ {
		if _, err = NewSPIAddress(uint32(sector) * regionSize); err != nil {
			return err
		}
		if err = f.spiWriteEnable(); err != nil {
			return err
		}
		for block := 0; block < blocksPerRegion; block++ {
			for word := 0; word < sectorSize/2; word++ {
				err = f.inFollowMode(func() error {
					if err := f.spiCmd(spiCmdAAIWordProgram); err != nil {
						return err
					}
					if block == 0 && word == 0 {
						if err := f.spiWrite(byte(sector)); err != nil {
							return err
						}
						if err := f.spiWrite(byte(sector >> 8)); err != nil {
							return err
						}
						if err := f.spiWrite(byte(sector >> 16)); err != nil {
							return err
						}
					}
					index := sector*regionSize + block*sectorSize + word*2
					if err := f.spiWrite(get(index)); err != nil {
						return err
					}
					return f.spiWrite(get(index + 1))
				})
				if err != nil {
					return err
				}
				if err = f.spiWait(); err != nil {
					return err
				}
			}
			done += sectorSize
			progress(done)
		}
		if err = f.spiWriteDisable(); err != nil {
			return err
		}
		if err = f.spiWait(); err != nil {
			return err
		}
	}
	return nil
}

// FlashDumps optionally captures a diagnostic image at each phase of Flash,
// for post-mortem comparison if a flash goes wrong. All three are off
// (nil) unless the caller sets them; a non-nil func receives that phase's
// full flash contents.
type FlashDumps struct {
	// Original, if set, receives the flash contents as read back right
	// after Start, before anything is erased.
	Original func([]byte) error
	// Erased, if set, receives the flash contents used for the post-erase
	// all-0xFF verification.
	Erased func([]byte) error
	// Written, if set, receives the flash contents used for the
	// post-program verification against image.
	Written func([]byte) error
}

// Flash is the top-level orchestration for replacing the whole flash
// contents with image: start, erase with 0xFF verification, program with
// trailing-0xFF padding, verify, then stop. Every primitive underneath
// exits follow mode on all of its return paths, and Erase/Write clear the
// write-enable latch when they fail, so a flash that errors out at any
// point never leaves the EC believing it's still relaying SPI
// transactions. dumps may be nil; any non-nil field captures that phase's
// image for diagnostics.
func (f *Flasher) Flash(image []byte, progress ProgressFunc, dumps *FlashDumps) (err error) {
	if len(image) > f.size {
		return ErrInvalidLength
	}
	if _, err := f.Start(); err != nil {
		return err
	}
	// Stop's return value is ignored: it may power the machine off and not
	// return normally at all, so it must never override a flash that
	// otherwise completed and verified successfully.
	defer f.Stop()

	if dumps != nil && dumps.Original != nil {
		original, err := f.Read(nil)
		if err != nil {
			return err
		}
		if err := dumps.Original(original); err != nil {
			return err
		}
	}

	if err = f.Erase(progress); err != nil {
		return err
	}
	erased, err := f.Read(nil)
	if err != nil {
		return err
	}
	for i, b := range erased {
		if b != 0xFF {
			return &EraseMismatchError{Offset: i, Actual: b}
		}
	}
	if dumps != nil && dumps.Erased != nil {
		if err := dumps.Erased(erased); err != nil {
			return err
		}
	}

	if err = f.Write(image, progress); err != nil {
		return err
	}
	verifyProgress := ProgressFunc(noopProgress)
	if progress != nil {
		verifyProgress = func(n int) bool { progress(n); return true }
	}
	written, err := f.Read(verifyProgress)
	if err != nil {
		return err
	}
	if dumps != nil && dumps.Written != nil {
		if err := dumps.Written(written); err != nil {
			return err
		}
	}
	for i := range written {
		want := byte(0xFF)
		if i < len(image) {
			want = image[i]
		}
		if written[i] != want {
			return &ProgramMismatchError{Offset: i, Actual: written[i], Expected: want}
		}
	}
	return nil
}
