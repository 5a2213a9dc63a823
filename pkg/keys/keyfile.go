// Package keys parses a Switch "prod.keys"-style keyfile and runs
// Nintendo's master-key derivation chain (spec.md §4.2) to produce an
// immutable KeySet for a single build/inspect session.
package keys

import (
	"bufio"
	"encoding/hex"
	"strings"

	"github.com/falk/nca-forge/pkg/ncaerr"
)

// rawKeys is the parsed `name -> bytes` table straight out of the keyfile,
// before derivation. Names are lower-cased on insert (case-insensitive).
type rawKeys map[string][]byte

// ParseKeyfile reads `name = hex` lines (case-insensitive names; `#` and
// `;` start comments) per spec.md §4.2.
func ParseKeyfile(text string) (rawKeys, error) {
	out := make(rawKeys)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(parts[0]))
		valHex := strings.TrimSpace(parts[1])
		if valHex == "" {
			continue
		}

		val, err := hex.DecodeString(valHex)
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "keyfile:"+name, err)
		}
		out[name] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r rawKeys) get(name string) []byte {
	v, ok := r[name]
	if !ok {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

func (r rawKeys) getIndexed(prefix string, i int) []byte {
	return r.get(indexedName(prefix, i))
}

func indexedName(prefix string, i int) string {
	const hexDigits = "0123456789abcdef"
	return prefix + string(hexDigits[i>>4]) + string(hexDigits[i&0xF])
}
