//go:build amd64 || 386
// +build amd64 386

package ecflash

//go:noescape
func inb(port uint16) byte

//go:noescape
func outb(port uint16, value byte)
