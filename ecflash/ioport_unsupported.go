//go:build !amd64 && !386
// +build !amd64,!386

package ecflash

// inb and outb have no implementation outside amd64 and 386; iopl(3) is
// itself Linux/x86-only, so acquirePrivilege already fails first on any
// other platform and these are never reached in practice.
func inb(port uint16) byte {
	panic("ecflash: port I/O unsupported on this platform")
}

func outb(port uint16, value byte) {
	panic("ecflash: port I/O unsupported on this platform")
}
