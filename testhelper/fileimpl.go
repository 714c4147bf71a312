package testhelper

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aaron-fl/e2fsgrok/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage, used for testing to enable
// stubbing out files.
type FileImpl struct {
	Reader reader
	Writer writer
	Size   int64
}

// backend.Storage interface guard — FileImpl doubles as an e2fs.Image's
// backing store in tests, not just a bare ReaderAt/WriterAt.
var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (os.FileInfo, error) {
	return fakeFileInfo{size: f.Size}, nil
}

// Sys always fails: FileImpl is never a real block device, so
// e2fs.Image falls back to Stat().Size() for its length.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

// Writable returns f itself when a Writer callback was supplied;
// otherwise reports the stub as opened read-only.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	if f.Writer == nil {
		return nil, backend.ErrIncorrectOpenMode
	}
	return f, nil
}

type fakeFileInfo struct{ size int64 }

func (fakeFileInfo) Name() string       { return "" }
func (f fakeFileInfo) Size() int64      { return f.size }
func (fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fakeFileInfo) IsDir() bool        { return false }
func (fakeFileInfo) Sys() any           { return nil }

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}
