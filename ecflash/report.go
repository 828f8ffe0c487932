package ecflash

import (
	"fmt"
	"log"
)

// maxQueryAttempts bounds the repeat-until-stable retries in Query: an EC
// under load can return a torn read once, but a value that never settles
// after this many tries indicates something is actually wrong.
const maxQueryAttempts = 8

// Binding pairs a human-readable label with an EC to report on.
type Binding struct {
	Label string
	EC    EC
}

// Query reads fn twice and retries (up to maxQueryAttempts times) until two
// consecutive reads agree, logging each disagreement. This absorbs EC
// firmware that occasionally returns a torn value mid-update; it is
// deliberately kept out of the core channel/flasher protocol and only
// applied at the reporting layer, where a slightly stale-but-consistent
// answer is acceptable and a hung retry loop is not.
func Query[T comparable](label string, fn func() (T, error)) (T, error) {
	var prev T
	for attempt := 0; attempt < maxQueryAttempts; attempt++ {
		a, err := fn()
		if err != nil {
			return a, err
		}
		b, err := fn()
		if err != nil {
			return b, err
		}
		if a == b {
			return a, nil
		}
		log.Printf("ecflash: %s unstable, retrying (%v != %v)", label, a, b)
		prev = b
	}
	return prev, fmt.Errorf("ecflash: %s did not stabilize after %d attempts", label, maxQueryAttempts)
}

// Report queries project, version and size for every binding and writes a
// row per binding to w in "label / project / version / size-in-KB" form.
func Report(bindings []Binding, w func(string, ...interface{})) error {
	for _, b := range bindings {
		project, err := Query("project", b.EC.Project)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Label, err)
		}
		version, err := Query("version", b.EC.Version)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Label, err)
		}
		size, err := Query("size", b.EC.Size)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Label, err)
		}
		w("%-12s %-16s %-16s %d KB\n", b.Label, project, version, size/1024)
	}
	return nil
}
