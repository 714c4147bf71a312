package e2fs

import "fmt"

// directoryEntryHeaderSchema is the fixed 8-byte header of a directory
// entry (spec.md §3): inode u32, rec_len u16, name_len u8, file_type u8.
// The variable-length name that follows is not part of the fixed schema —
// grounded on original_source/e2fs/directory.py's DirectoryEntry, whose
// `name` property reads name_len bytes starting right after the struct's
// declared size.
var directoryEntryHeaderSchema = buildDirectoryEntrySchema()

func buildDirectoryEntrySchema() *Schema {
	s := SchemaFromSeq("DirectoryEntry", []FieldSpec{
		u32("inode", "Inode number, or 0 for an unused entry (tombstone)."),
		u16("rec_len", "Length of this entry, in bytes."),
		u8("name_len", "Length of the name, in bytes."),
		u8("file_type", "File type, when FEATURE_INCOMPAT_FILETYPE is set."),
	})
	s.Enums["file_type"] = map[uint64]string{
		FTUnknown: "Unknown", FTRegFile: "RegularFile", FTDir: "Directory",
		FTChrdev: "CharacterDevice", FTBlkdev: "BlockDevice", FTFifo: "FIFO",
		FTSock: "Socket", FTSymlink: "Symlink",
	}
	return s
}

// DirectoryEntry is one entry of a DirectoryBlock.
type DirectoryEntry struct {
	*Record
	img *Image
}

// Inode is the inode field.
func (e *DirectoryEntry) Inode() uint32 { return uint32(e.MustUint("inode")) }

// RecLen is the rec_len field.
func (e *DirectoryEntry) RecLen() uint16 { return uint16(e.MustUint("rec_len")) }

// NameLen is the name_len field.
func (e *DirectoryEntry) NameLen() uint8 { return uint8(e.MustUint("name_len")) }

// Name reads the name_len raw bytes immediately following the 8-byte
// header.
func (e *DirectoryEntry) Name() ([]byte, error) {
	return e.img.ReadExact(e.Offset()+8, int(e.NameLen()))
}

// IsTombstone reports whether this entry's inode field is 0.
func (e *DirectoryEntry) IsTombstone() bool { return e.Inode() == 0 }

// Validate checks this entry against spec.md §4.7's per-entry rules.
// blockBase/blockSize bound the containing block; nonameOK permits an
// empty name (used when scanning unknown blocks, spec.md §4.9).
func (e *DirectoryEntry) Validate(blockBase int64, blockSize int, all, nonameOK bool) []string {
	e.errs = nil
	nameLen := int(e.NameLen())
	recLen := int(e.RecLen())
	if nameLen > recLen-8 {
		e.addErr(fmt.Sprintf("name_len %d exceeds rec_len-8 (%d)", nameLen, recLen-8))
		if !all {
			return e.errs
		}
	}
	if int(e.Offset()-blockBase)+recLen > blockSize {
		e.addErr("rec_len doesn't end on the next block")
		if !all {
			return e.errs
		}
	}
	name, err := e.Name()
	if err != nil {
		e.addErr(err.Error())
		return e.errs
	}
	for _, c := range name {
		if c < 32 {
			e.addErr(fmt.Sprintf("control character %#x in name", c))
			if !all {
				return e.errs
			}
			break
		}
	}
	if len(name) == 0 && !nonameOK {
		e.addErr("empty name")
		if !all {
			return e.errs
		}
	}
	return e.errs
}

// DirectoryBlock parses a whole block_size block as a tiled chain of
// variable-length directory entries (spec.md §4.7). Grounded on
// original_source/e2fs/directory.py's DirectoryBlk, which holds the owning
// Superblock rather than a bare image so validate can consult the data
// bitmap.
type DirectoryBlock struct {
	sb        *Superblock
	img       *Image
	blkid     uint32
	blockSize int
	offset    int64
}

// NewDirectoryBlock constructs the view over block blkid of sb's image.
func NewDirectoryBlock(sb *Superblock, blkid uint32) *DirectoryBlock {
	blockSize := sb.BlockSize()
	return &DirectoryBlock{sb: sb, img: sb.img, blkid: blkid, blockSize: blockSize, offset: int64(blkid) * int64(blockSize)}
}

// Blkid is the block id this view parses.
func (d *DirectoryBlock) Blkid() uint32 { return d.blkid }

// EachEntry walks entries at offsets base, base+rec_len_0,
// base+rec_len_0+rec_len_1, ... until the cursor reaches base+block_size.
// A rec_len of 0 would loop forever; per spec.md §8 scenario 5 the walker
// advances by 2*block_size on rec_len==0, guaranteeing termination within
// this call (original_source/e2fs/directory.py's `offset += d.rec_len or
// 2*block_size`).
func (d *DirectoryBlock) EachEntry() ([]*DirectoryEntry, error) {
	var out []*DirectoryEntry
	end := d.offset + int64(d.blockSize)
	offset := d.offset
	for offset < end {
		e := &DirectoryEntry{Record: directoryEntryHeaderSchema.NewRecord(d.img, offset), img: d.img}
		out = append(out, e)
		recLen := e.RecLen()
		if recLen == 0 {
			offset += 2 * int64(d.blockSize)
			continue
		}
		offset += int64(recLen)
	}
	return out, nil
}

// Validate runs per-entry validation over every entry and checks that the
// sum of rec_lens exactly equals block_size (spec.md §4.7). nonameOK is
// passed through to each entry (used by the Analyzer scanning unknown
// blocks with unknown structure).
func (d *DirectoryBlock) Validate(all, nonameOK bool) ([]string, error) {
	entries, err := d.EachEntry()
	if err != nil {
		return nil, err
	}
	var errs []string
	sum := 0
	for _, e := range entries {
		sum += int(e.RecLen())
		entryErrs := e.Validate(d.offset, d.blockSize, all, nonameOK)
		errs = append(errs, entryErrs...)
		if len(entryErrs) > 0 && !all {
			return errs, nil
		}
	}
	if sum != d.blockSize {
		errs = append(errs, fmt.Sprintf("entries sum to %d bytes, block is %d", sum, d.blockSize))
	}
	if free, err := d.sb.BlkidFree(d.blkid); err == nil && free {
		errs = append(errs, fmt.Sprintf("Block %d is free", d.blkid))
	}
	return errs, nil
}
