//go:build !linux

package file

import "os"

// DeviceSize is only implemented for Linux raw block devices; on other
// platforms callers always fall back to Stat().Size().
func DeviceSize(f *os.File) (int64, error) {
	return 0, ErrNotDevice
}
