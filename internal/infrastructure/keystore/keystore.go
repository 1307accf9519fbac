package keystore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

// LoadFile reads wallet keys in WIF, one per line. Blank lines and lines
// starting with # are skipped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}
	defer f.Close()

	var keys []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		wif := strings.TrimSpace(sc.Text())
		if wif == "" || strings.HasPrefix(wif, "#") {
			continue
		}
		if _, err := btcutil.DecodeWIF(wif); err != nil {
			return nil, fmt.Errorf("keystore line %d: %w", line, err)
		}
		if _, dup := seen[wif]; dup {
			continue
		}
		seen[wif] = struct{}{}
		keys = append(keys, wif)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	return keys, nil
}
