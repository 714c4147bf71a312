package e2fs

import (
	"github.com/aaron-fl/e2fsgrok/backend"
	"github.com/aaron-fl/e2fsgrok/backend/file"
)

// Image is the absolute-offset read/write medium over a raw ext2/3/4 image
// (spec.md §4.1 BlockIO). It is owned by the session and outlives every
// record read through it; all offsets are absolute from the start of the
// image, never relative to a block group or inode.
type Image struct {
	storage backend.Storage
	length  int64
}

// Open wraps an existing backend.Storage as an Image, sizing it once up
// front so ReadExact/WriteExact can report ImageEOF without a syscall per call.
func Open(storage backend.Storage) (*Image, error) {
	length, err := sizeOf(storage)
	if err != nil {
		return nil, err
	}
	return &Image{storage: storage, length: length}, nil
}

// OpenPath opens an image file or raw block device by path, mirroring
// backend/file.OpenFromPath; readOnly false requires --write semantics at
// the command layer (spec.md §6).
func OpenPath(pathName string, readOnly bool) (*Image, error) {
	storage, err := file.OpenFromPath(pathName, readOnly)
	if err != nil {
		return nil, err
	}
	return Open(storage)
}

func sizeOf(storage backend.Storage) (int64, error) {
	if osFile, err := storage.Sys(); err == nil {
		if n, err := file.DeviceSize(osFile); err == nil {
			return n, nil
		}
	}
	fi, err := storage.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Len returns the image's length in bytes.
func (img *Image) Len() int64 { return img.length }

// ReadExact reads exactly n bytes at offset, failing with ImageEOF if the
// range is out of bounds.
func (img *Image) ReadExact(offset int64, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+int64(n) > img.length {
		return nil, &ImageEOF{Offset: offset, Len: img.length}
	}
	buf := make([]byte, n)
	if _, err := img.storage.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteExact writes data at offset. Its callers are the three narrow edit
// operations of §4.11 and the stream-backed Bitmap's Set.
func (img *Image) WriteExact(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > img.length {
		return &ImageEOF{Offset: offset, Len: img.length}
	}
	w, err := img.storage.Writable()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(data, offset)
	return err
}

// Close releases the underlying storage.
func (img *Image) Close() error { return img.storage.Close() }
