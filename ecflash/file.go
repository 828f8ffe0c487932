package ecflash

import "strings"

// FileEC reads identity metadata out of a captured EC firmware image
// instead of a live channel. It implements EC so reporting code can treat a
// dumped ROM the same as a running EC.
type FileEC struct {
	data []byte
}

// NewFileEC wraps a captured firmware image.
func NewFileEC(data []byte) *FileEC {
	return &FileEC{data: data}
}

func (f *FileEC) Size() (int, error) {
	return len(f.data), nil
}

func (f *FileEC) Project() (string, error) {
	return scanKeyValue(f.data, []byte("PRJ:")), nil
}

func (f *FileEC) Version() (string, error) {
	v := scanKeyValue(f.data, []byte("VER:"))
	return strings.TrimLeft(v, " "), nil
}

// scanKeyValue walks data looking for key, then collects the ASCII bytes
// that follow it up to the next '$' byte.
//
// The match position i advances on a byte match and, on mismatch, resets
// to zero and immediately re-checks the same byte against key[0] — so a
// byte that both breaks one match attempt and starts another (e.g.
// scanning for "AB" inside "AAB") is not missed. It never falls back
// further than that one byte, so a key whose longer prefix recurs inside
// itself can still be missed (e.g. "AA:" inside "AAA:").
func scanKeyValue(data, key []byte) string {
	var out []byte
	i := 0
	for _, b := range data {
		if i < len(key) {
			if b == key[i] {
				i++
				continue
			}
			i = 0
			if b == key[i] {
				i++
			}
			continue
		}
		if b == '$' {
			break
		}
		out = append(out, b)
	}
	return string(out)
}
