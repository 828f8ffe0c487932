// ecreport queries one or more Embedded Controller bindings and prints
// their project, version and flash size.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/system76/ecflash/ecflash"
)

func mainImpl() error {
	channels := flag.String("ec", "", "comma separated live EC channel indices to query, e.g. \"0,1\"")
	files := flag.String("file", "", "comma separated captured EC image files to query")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	var bindings []ecflash.Binding
	for _, idx := range splitNonEmpty(*channels) {
		n, err := parseChannel(idx)
		if err != nil {
			return err
		}
		ec, err := ecflash.NewLiveEC(n)
		if err != nil {
			return fmt.Errorf("ec%d: %w", n, err)
		}
		bindings = append(bindings, ecflash.Binding{Label: fmt.Sprintf("ec%d", n), EC: ec})
	}
	for _, path := range splitNonEmpty(*files) {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		bindings = append(bindings, ecflash.Binding{Label: path, EC: ecflash.NewFileEC(data)})
	}
	if len(bindings) == 0 {
		return fmt.Errorf("specify at least one of -ec or -file")
	}

	return ecflash.Report(bindings, func(format string, args ...interface{}) {
		fmt.Printf(format, args...)
	})
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseChannel(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid channel %q: %w", s, err)
	}
	return n, nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\necreport: %s.\n", err)
		os.Exit(1)
	}
}
