package e2fs

import (
	"encoding/binary"
	"testing"

	"github.com/aaron-fl/e2fsgrok/testhelper"
)

// fixtureLayout documents the synthetic single-group image every *_test.go
// in this package builds against: 4096-byte blocks, 20 blocks total, 8
// inodes per group, one block group, SPARSE_SUPER unset (irrelevant with
// only one group). Grounded on spec.md §8 scenario 1 ("pristine image, one
// group, inode 2 is a directory listing just . and ..").
//
//	block 0: boot block, carries the primary superblock at byte offset 1024
//	block 1: group descriptor table (1 32-byte descriptor)
//	block 2: data bitmap (4096 bytes / 32768 bits)
//	block 3: inode bitmap (1 byte / 8 bits)
//	block 4: inode table (8 * 128-byte inodes)
//	block 5: inode 2's sole data block, a directory block with . and ..
const (
	fixtureBlockSize      = 4096
	fixtureBlocksCountLo  = 20
	fixtureInodesPerGroup = 8
	fixtureRootDataBlkid  = 5
)

func newFixtureImage(t *testing.T) (*Image, *Superblock) {
	t.Helper()
	buf := make([]byte, fixtureBlocksCountLo*fixtureBlockSize)

	putU16 := func(off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }
	putU32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }

	sbOff := 1024
	putU32(sbOff+0, 8*fixtureInodesPerGroup) // inodes_count (unused precisely by tests)
	putU32(sbOff+4, fixtureBlocksCountLo)     // blocks_count_lo
	putU32(sbOff+20, 0)                       // first_data_block
	putU32(sbOff+24, 2)                       // log_block_size -> 1024<<2 = 4096
	putU32(sbOff+32, 8*fixtureBlockSize)      // blocks_per_group (== 8*block_size invariant)
	putU32(sbOff+40, fixtureInodesPerGroup)   // inodes_per_group
	putU16(sbOff+56, Ext2Magic)               // magic
	putU16(sbOff+58, ExtValidFS)              // state
	putU16(sbOff+60, ErrorsContinue)          // errors
	putU32(sbOff+72, 0)                       // creator_os
	putU32(sbOff+76, DynamicRev)              // rev_level
	putU16(sbOff+88, GoodOldInodeSize)        // inode_size
	putU16(sbOff+90, 0)                       // block_group_nr

	// Group descriptor table: block 1, one 32-byte descriptor.
	gdOff := 1 * fixtureBlockSize
	putU32(gdOff+0, 2) // bg_block_bitmap_lo
	putU32(gdOff+4, 3) // bg_inode_bitmap_lo
	putU32(gdOff+8, 4) // bg_inode_table_lo

	// Inode bitmap: block 3, mark inode 1 (reserved) and inode 2 (root) used.
	buf[3*fixtureBlockSize] = 0x03

	// Data bitmap: block 2, mark block 5 (root's data block) used.
	dataBitmapOff := 2 * fixtureBlockSize
	buf[dataBitmapOff+fixtureRootDataBlkid/8] |= 1 << uint(fixtureRootDataBlkid%8)

	// Inode 2 (root), index 1 within the inode table at block 4.
	inoOff := 4*fixtureBlockSize + 1*GoodOldInodeSize
	putU16(inoOff+0, uint16(SIFDIR|0o755)) // mode
	putU16(inoOff+26, 2)                   // links_count
	putU32(inoOff+4, fixtureBlockSize)     // size_lo: one block
	putU32(inoOff+28, 8)                   // blocks_lo: 8 512-byte sectors == 1 block of 4096
	putU32(inoOff+40, fixtureRootDataBlkid) // block0

	// Root directory block: block 5, entries "." and ".." both -> inode 2,
	// tiling the 4096-byte block exactly (spec.md §8 scenario 1).
	dirOff := fixtureRootDataBlkid * fixtureBlockSize
	putU32(dirOff+0, 2)            // inode
	putU16(dirOff+4, 12)           // rec_len
	buf[dirOff+6] = 1              // name_len
	buf[dirOff+7] = byte(FTDir)    // file_type
	buf[dirOff+8] = '.'
	putU32(dirOff+12, 2)                        // inode
	putU16(dirOff+16, fixtureBlockSize-12)       // rec_len: remainder of the block
	buf[dirOff+18] = 2                          // name_len
	buf[dirOff+19] = byte(FTDir)                 // file_type
	copy(buf[dirOff+20:], "..")

	fi := &testhelper.FileImpl{Size: int64(len(buf))}
	fi.Reader = func(b []byte, offset int64) (int, error) {
		return copy(b, buf[offset:]), nil
	}
	fi.Writer = func(b []byte, offset int64) (int, error) {
		return copy(buf[offset:], b), nil
	}

	img, err := Open(fi)
	if err != nil {
		t.Fatalf("Open fixture: %v", err)
	}
	return img, NewSuperblock(img)
}
