//go:build windows

package locate

import "os"

// canRead checks readability with a plain open, the only reliable
// non-mutating probe Windows offers.
func canRead(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// canWrite checks writability from file attributes. Directories report
// writable when they exist; ACL denials are not visible without a write
// probe, which plain checks must not perform.
func canWrite(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	return info.Mode().Perm()&0o200 != 0
}
