// Package ecflash drives the command/status interface of a laptop
// Embedded Controller to query its identity and reflash the SPI NOR flash
// chip behind it.
package ecflash

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var privilegeOnce sync.Once
var privilegeErr error

// acquirePrivilege grants the process ring-3 I/O privilege (IOPL 3),
// allowing the IN/OUT instructions used by inb/outb to execute without
// faulting. It is idempotent and safe to call from multiple goroutines;
// the underlying iopl(3) syscall only needs to run once per process.
func acquirePrivilege() error {
	privilegeOnce.Do(func() {
		if err := unix.Iopl(3); err != nil {
			privilegeErr = fmt.Errorf("%w: %s", ErrPrivilegeDenied, err)
		}
	})
	return privilegeErr
}

// inb and outb are implemented in assembly per architecture; see
// ioport_linux_amd64.s and ioport_linux_386.s. On architectures without an
// IN/OUT instruction they are provided by ioport_unsupported.go and always
// fail.
