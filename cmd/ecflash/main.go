// ecflash reflashes the Embedded Controller's SPI NOR flash chip with a
// provided firmware image.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/maruel/interrupt"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/system76/ecflash/ecflash"
)

func mainImpl() error {
	channel := flag.Int("ec", 1, "live EC channel index to flash (1 is the primary ISP channel)")
	romPath := flag.String("rom", "", "firmware image to write")
	dumpPath := flag.String("dump", "", "read the current flash contents to this file and exit, without writing anything")
	saveOriginal := flag.String("save-original", "", "diagnostic: also save the pre-erase flash contents to this file")
	saveErased := flag.String("save-erased", "", "diagnostic: also save the post-erase flash contents to this file")
	saveWritten := flag.String("save-written", "", "diagnostic: also save the post-program flash contents to this file")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	interrupt.HandleCtrlC()

	ec, err := ecflash.NewLiveEC(*channel)
	if err != nil {
		return err
	}
	f, err := ecflash.NewFlasher(ec.Channel)
	if err != nil {
		return err
	}
	fmt.Printf("Flash size: %d KB\n", f.Size()/1024)

	if *dumpPath != "" {
		return dumpFlash(f, *dumpPath)
	}

	if *romPath == "" {
		return fmt.Errorf("specify -rom or -dump")
	}
	image, err := ioutil.ReadFile(*romPath)
	if err != nil {
		return err
	}

	// Flash reports progress through three passes over the whole chip:
	// erase, program, and the verification read. Each pass restarts its
	// byte count from zero, so the bar spans all three and the callback
	// detects the rollover.
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(3*f.Size()),
		mpb.PrependDecorators(decor.Name("flashing: ")),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	defer p.Wait()

	base, last := 0, 0
	progress := func(n int) bool {
		if n < last {
			base += last
		}
		last = n
		bar.SetCurrent(int64(base + n))
		return true
	}

	dumps := &ecflash.FlashDumps{
		Original: dumpWriter(*saveOriginal),
		Erased:   dumpWriter(*saveErased),
		Written:  dumpWriter(*saveWritten),
	}

	// Ctrl-C is intentionally not wired into the flash itself: once Start
	// has been issued, interrupting the ISP sequence mid-primitive can leave
	// the EC in follow mode indefinitely. It's only observed around the
	// read-only -dump path.
	if err := f.Flash(image, progress, dumps); err != nil {
		return err
	}
	fmt.Println("Flash complete.")
	return nil
}

// dumpWriter returns nil if path is empty, so the resulting FlashDumps field
// stays off by default; otherwise it writes the phase's image to path.
func dumpWriter(path string) func([]byte) error {
	if path == "" {
		return nil
	}
	return func(data []byte) error {
		return ioutil.WriteFile(path, data, 0o644)
	}
}

// dumpFlash is read-only, so unlike the flashing path above it's safe to
// interrupt: Ctrl-C is checked between blocks and aborts the read cleanly
// without ever having issued a write.
func dumpFlash(f *ecflash.Flasher, path string) error {
	if _, err := f.Start(); err != nil {
		return err
	}
	defer f.Stop()
	data, err := f.Read(func(int) bool { return !interrupt.IsSet() })
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0o644)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\necflash: %s.\n", err)
		os.Exit(1)
	}
}
