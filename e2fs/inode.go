package e2fs

import (
	"fmt"
)

// inode128Schema is grounded field-for-field on
// original_source/e2fs/inode.py's INode128 dfn. block0..block14 are the 15
// logical block pointers (12 direct + single/double/triple indirect),
// occupying bytes [40, 100) of the record — block0 starts at offset 40,
// matching spec.md §8 scenario 6's "bytes at inode.offset + 40".
var inode128Schema = buildInode128Schema()

func buildInode128Schema() *Schema {
	specs := []FieldSpec{
		u16("mode", "File mode."),
		u16("uid", "Lower 16-bits of owner uid."),
		u32("size_lo", "Lower 32-bits of size in bytes."),
		u32("atime", "Last access time."),
		u32("ctime", "Last inode change time."),
		u32("mtime", "Last data modification time."),
		u32("dtime", "Deletion time."),
		u16("gid", "Lower 16-bits of owner gid."),
		u16("links_count", "Hard link count."),
		u32("blocks_lo", "Lower 32-bits of block count, in 512-byte sectors."),
		u32("flags", "Inode flags."),
		u32("version", "OS-dependent version field (osd1)."),
	}
	for i := 0; i < 15; i++ {
		specs = append(specs, u32(blockFieldName(i), fmt.Sprintf("Block pointer %d.", i)))
	}
	specs = append(specs,
		u32("generation", "File version, for NFS."),
		u32("file_acl_lo", "Lower 32-bits of extended attribute block."),
		u32("size_high", "Upper 32-bits of size in bytes (or dir_acl)."),
		u32("obso_faddr", "Obsolete fragment address."),
		u16("blocks_high", "Upper 16-bits of block count."),
		u16("file_acl_high", "Upper 16-bits of extended attribute block."),
		u16("uid_high", "Upper 16-bits of owner uid."),
		u16("gid_high", "Upper 16-bits of owner gid."),
		u16("checksum_lo", "Lower 16-bits of inode checksum."),
		u16("reserved", "Reserved / overlaps extra_isize on 128-byte inodes."),
	)
	s := SchemaFromSeq("Inode128", specs)
	s.Pretty["mode"] = prettyMode
	s.Pretty["atime"] = prettyTime("atime")
	s.Pretty["ctime"] = prettyTime("ctime")
	s.Pretty["mtime"] = prettyTime("mtime")
	s.Pretty["dtime"] = prettyTime("dtime")
	s.Flags["flags"] = map[uint64]string{
		InodeFlagSecrm: "SECRM", InodeFlagUnrm: "UNRM", InodeFlagCompr: "COMPR",
		InodeFlagSync: "SYNC", InodeFlagImmutable: "IMMUTABLE", InodeFlagAppend: "APPEND",
		InodeFlagNodump: "NODUMP", InodeFlagNoatime: "NOATIME", InodeFlagDirty: "DIRTY",
		InodeFlagComprblk: "COMPRBLK", InodeFlagNocompr: "NOCOMPR", InodeFlagEncrypt: "ENCRYPT",
		InodeFlagIndex: "INDEX", InodeFlagImagic: "IMAGIC", InodeFlagJournalData: "JOURNAL_DATA",
		InodeFlagNotail: "NOTAIL", InodeFlagDirsync: "DIRSYNC", InodeFlagTopdir: "TOPDIR",
		InodeFlagHugeFile: "HUGE_FILE", InodeFlagExtents: "EXTENTS", InodeFlagEAInode: "EA_INODE",
		InodeFlagEOFBlocks: "EOFBLOCKS", InodeFlagInlineData: "INLINE_DATA", InodeFlagReserved: "RESERVED",
	}
	return s
}

func blockFieldName(i int) string { return fmt.Sprintf("block%d", i) }

func prettyTime(field string) PrettyFunc {
	return func(r *Record) string {
		v, err := r.Uint(field)
		if err != nil || v == 0 {
			return "Never"
		}
		return fmt.Sprintf("@%d", v)
	}
}

func prettyMode(r *Record) string {
	mode, err := r.Uint("mode")
	if err != nil {
		return "?"
	}
	typeChar := byte('?')
	switch mode & STypeMask {
	case SIFSOCK:
		typeChar = 's'
	case SIFLNK:
		typeChar = 'l'
	case SIFREG:
		typeChar = '-'
	case SIFBLK:
		typeChar = 'b'
	case SIFDIR:
		typeChar = 'd'
	case SIFCHR:
		typeChar = 'c'
	case SIFIFO:
		typeChar = 'p'
	}
	bits := []struct {
		mask uint64
		c    byte
	}{
		{SIRUSR, 'r'}, {SIWUSR, 'w'}, {SIXUSR, 'x'},
		{SIRGRP, 'r'}, {SIWGRP, 'w'}, {SIXGRP, 'x'},
		{SIROTH, 'r'}, {SIWOTH, 'w'}, {SIXOTH, 'x'},
	}
	out := make([]byte, 10)
	out[0] = typeChar
	for i, b := range bits {
		if mode&b.mask != 0 {
			out[i+1] = b.c
		} else {
			out[i+1] = '-'
		}
	}
	if mode&SISUID != 0 {
		if out[3] == 'x' {
			out[3] = 's'
		} else {
			out[3] = 'S'
		}
	}
	if mode&SISGID != 0 {
		if out[6] == 'x' {
			out[6] = 's'
		} else {
			out[6] = 'S'
		}
	}
	if mode&SISVTX != 0 {
		if out[9] == 'x' {
			out[9] = 't'
		} else {
			out[9] = 'T'
		}
	}
	return string(out)
}

// Inode is a 128-byte record (spec.md §4.6): mode/flags/timestamps,
// yields its data-block ids via EachBlock, and exposes a line/chunk reader
// over the file body.
type Inode struct {
	*Record
	sb *Superblock
	bg *BlockGroup
	id uint32
}

// ID is this inode's 1-based id.
func (ino *Inode) ID() uint32 { return ino.id }

// Ftype is the high nibble of mode.
func (ino *Inode) Ftype() uint64 {
	mode := ino.MustUint("mode")
	return mode & STypeMask
}

// IsDir reports whether this inode is a directory.
func (ino *Inode) IsDir() bool { return ino.Ftype() == SIFDIR }

// BlockCount is blocks_lo >> (1 + log_block_size) (spec.md §3).
func (ino *Inode) BlockCount() uint32 {
	logBlockSize := ino.sb.MustUint("log_block_size")
	blocksLo := ino.MustUint("blocks_lo")
	return uint32(blocksLo >> (1 + logBlockSize))
}

// SizeLo is size_lo.
func (ino *Inode) SizeLo() uint64 { return ino.MustUint("size_lo") }

// PrettyMode renders a ten-character string: the one-letter type code
// followed by nine permission characters, with setuid/setgid/sticky shown
// in the execute positions (spec.md §4.6).
func (ino *Inode) PrettyMode() string { return prettyMode(ino.Record) }

// Validate checks the inode's bitmap state against sb.InodeFree and then
// the generic enum/flag findings.
func (ino *Inode) Validate(all bool) []string {
	ino.errs = nil
	free, err := ino.sb.InodeFree(ino.id)
	if err != nil {
		ino.addErr(err.Error())
		if !all {
			return ino.errs
		}
	} else if free {
		ino.addErr(fmt.Sprintf("inode %d is marked free but is being read", ino.id))
		if !all {
			return ino.errs
		}
	}
	ino.errs = append(ino.errs, ino.ValidateEnumsAndFlags(all)...)
	return ino.errs
}

// blkPerIndirect is the number of u32 entries per indirection block:
// block_size/4.
func (ino *Inode) blkPerIndirect() int { return ino.sb.BlockSize() / 4 }

// readIndirectBlock reads one indirection block's worth of u32 block ids.
func (ino *Inode) readIndirectBlock(blkid uint32) ([]uint32, error) {
	raw, err := ino.img.ReadExact(int64(blkid)*int64(ino.sb.BlockSize()), ino.sb.BlockSize())
	if err != nil {
		return nil, err
	}
	n := ino.blkPerIndirect()
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = leUint32(raw[i*4:])
	}
	return out, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// EachBlock produces the data-block ids of the file in logical order
// (spec.md §4.6): 12 direct pointers, then single/double/triple indirect,
// each level read by its own nested per-level loop rather than a generator
// (spec.md §9's "reimplement as an explicit stack machine (or three nested
// loops)" — this is the *correct* walker; original_source/e2fs/inode.py's
// BlkIterator aborts with NotImplemented() past single-indirect, which is
// the named bug this module does not reproduce).
//
// strict controls how an out-of-range block id (>= blocks_count_lo) is
// handled: when false it is reported (via the returned Report) and coerced
// to 0; when true, InvalidBlkid is returned immediately.
func (ino *Inode) EachBlock(strict bool) ([]uint32, *BlockWalkReport, error) {
	report := &BlockWalkReport{}
	var out []uint32
	limit := ino.sb.BlocksCountLo()

	check := func(b uint32, where string) (uint32, error) {
		if b == 0 {
			return 0, nil
		}
		if b >= limit {
			if strict {
				return 0, &InvalidBlkid{Blkid: b, BlocksLen: limit, SourceInfo: where}
			}
			report.Invalid = append(report.Invalid, b)
			return 0, nil
		}
		return b, nil
	}

	emit := func(b uint32) { out = append(out, b) }

	// Direct blocks: block[0..11].
	for i := 0; i < 12; i++ {
		raw := uint32(ino.MustUint(blockFieldName(i)))
		b, err := check(raw, fmt.Sprintf("direct[%d]", i))
		if err != nil {
			return nil, nil, err
		}
		if b != 0 {
			emit(b)
		}
	}

	walkSingle := func(blkid uint32, where string) error {
		if blkid == 0 {
			return nil
		}
		entries, err := ino.readIndirectBlock(blkid)
		if err != nil {
			return err
		}
		for i, raw := range entries {
			b, err := check(raw, fmt.Sprintf("%s.single[%d]", where, i))
			if err != nil {
				return err
			}
			if b != 0 {
				emit(b)
			}
		}
		return nil
	}

	walkDouble := func(blkid uint32, where string) error {
		if blkid == 0 {
			return nil
		}
		entries, err := ino.readIndirectBlock(blkid)
		if err != nil {
			return err
		}
		for i, raw := range entries {
			b, err := check(raw, fmt.Sprintf("%s.double[%d]", where, i))
			if err != nil {
				return err
			}
			if err := walkSingle(b, fmt.Sprintf("%s.double[%d]", where, i)); err != nil {
				return err
			}
		}
		return nil
	}

	walkTriple := func(blkid uint32, where string) error {
		if blkid == 0 {
			return nil
		}
		entries, err := ino.readIndirectBlock(blkid)
		if err != nil {
			return err
		}
		for i, raw := range entries {
			b, err := check(raw, fmt.Sprintf("%s.triple[%d]", where, i))
			if err != nil {
				return err
			}
			if err := walkDouble(b, fmt.Sprintf("%s.triple[%d]", where, i)); err != nil {
				return err
			}
		}
		return nil
	}

	singleBlkid := uint32(ino.MustUint(blockFieldName(12)))
	if b, err := check(singleBlkid, "block[12]"); err != nil {
		return nil, nil, err
	} else if err := walkSingle(b, "block[12]"); err != nil {
		return nil, nil, err
	}

	doubleBlkid := uint32(ino.MustUint(blockFieldName(13)))
	if b, err := check(doubleBlkid, "block[13]"); err != nil {
		return nil, nil, err
	} else if err := walkDouble(b, "block[13]"); err != nil {
		return nil, nil, err
	}

	tripleBlkid := uint32(ino.MustUint(blockFieldName(14)))
	if b, err := check(tripleBlkid, "block[14]"); err != nil {
		return nil, nil, err
	} else if err := walkTriple(b, "block[14]"); err != nil {
		return nil, nil, err
	}

	// Stopping rule (spec.md §4.6): compare yielded count to block_count
	// and to ceil(size_lo/block_size); a mismatch is reported, not fatal.
	n := uint32(len(out))
	blockCount := ino.BlockCount()
	sizeBlocks := (ino.SizeLo() + uint64(ino.sb.BlockSize()) - 1) / uint64(ino.sb.BlockSize())
	if n != blockCount || uint64(n) != sizeBlocks {
		report.CountMismatch = true
	}
	report.Count = n
	return out, report, nil
}

// BlockWalkReport carries EachBlock's non-fatal findings: any out-of-range
// block ids coerced to 0, and whether the yielded count matched
// block_count / ceil(size_lo/block_size).
type BlockWalkReport struct {
	Count         uint32
	CountMismatch bool
	Invalid       []uint32
}

// EachLine reads the file body as a sequence of byte chunks (spec.md
// §4.6): when nl, split at the next 0x0A (inclusive); otherwise emit
// fixed-size chunks of lineSize. Terminates when size bytes have been
// emitted (size<0 means unbounded) or the block sequence is exhausted.
func (ino *Inode) EachLine(lineSize int, nl bool, size int64) ([][]byte, error) {
	blocks, _, err := ino.EachBlock(false)
	if err != nil {
		return nil, err
	}
	var body []byte
	remaining := size
	for _, b := range blocks {
		if b == 0 {
			continue
		}
		chunk, err := ino.img.ReadExact(int64(b)*int64(ino.sb.BlockSize()), ino.sb.BlockSize())
		if err != nil {
			return nil, err
		}
		body = append(body, chunk...)
		if size >= 0 && int64(len(body)) >= remaining {
			body = body[:remaining]
			break
		}
	}
	if size >= 0 && int64(len(body)) > size {
		body = body[:size]
	}
	var out [][]byte
	if nl {
		start := 0
		for i, c := range body {
			if c == 0x0A {
				out = append(out, body[start:i+1])
				start = i + 1
			}
		}
		if start < len(body) {
			out = append(out, body[start:])
		}
		return out, nil
	}
	for i := 0; i < len(body); i += lineSize {
		end := i + lineSize
		if end > len(body) {
			end = len(body)
		}
		out = append(out, body[i:end])
	}
	return out, nil
}
