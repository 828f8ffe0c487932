package ecflash

// fcommandTCPC is the FCommand code the EC uses to relay a register access
// to the USB-PD Type-C Port Controller wired behind it.
const fcommandTCPC = 0x76

// fcommandTCPCSelect is the FCommand "dat" byte that selects the TCPC
// sub-device behind the EC's FCommand relay.
const fcommandTCPCSelect = 0x10

// ReadTCPCRegister reads a 16-bit register from the Type-C Port Controller
// through the EC's FCommand relay, e.g. ReadTCPCRegister(c, 0x10) to read
// the FUSB302-style CC status register. The request carries a fixed 0x2c
// lead byte, then the register number, then two zero placeholder bytes;
// the EC fills buf[2]/buf[3] with the register's low/high byte in
// response.
func ReadTCPCRegister(c Channel, command byte) (uint16, error) {
	buf := [4]byte{0x2c, command, 0, 0}
	if err := c.FCommand(fcommandTCPC, fcommandTCPCSelect, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[2]) | uint16(buf[3])<<8, nil
}
