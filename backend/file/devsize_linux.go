package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// blkGetSize64 is BLKGETSIZE64 from linux/fs.h: get the device size in bytes.
const blkGetSize64 = 0x80081272

// DeviceSize returns the size in bytes of a raw block device. Regular image
// files report ErrNotDevice; callers should fall back to Stat().Size() for
// those. Mirrors the ioctl pattern in disk/disk_unix.go.
func DeviceSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return 0, ErrNotDevice
	}
	size, err := unix.IoctlGetUint64(int(f.Fd()), blkGetSize64)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}
