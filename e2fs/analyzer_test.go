package e2fs

import (
	"encoding/binary"
	"testing"
)

// writeDirBlock stamps a single directory entry occupying the whole block at
// blkid: name -> ino, rec_len == block_size.
func writeDirBlock(t *testing.T, img *Image, sb *Superblock, blkid uint32, name string, ino uint32) {
	t.Helper()
	blockSize := sb.BlockSize()
	off := int64(blkid) * int64(blockSize)
	hdr := make([]byte, 8+len(name))
	binary.LittleEndian.PutUint32(hdr[0:], ino)
	binary.LittleEndian.PutUint16(hdr[4:], uint16(blockSize))
	hdr[6] = byte(len(name))
	hdr[7] = byte(FTDir)
	copy(hdr[8:], name)
	if err := img.WriteExact(off, hdr); err != nil {
		t.Fatal(err)
	}
}

// setBlockUsed flips blkid's bit on in the fixture's data bitmap (block 2).
func setBlockUsed(t *testing.T, img *Image, blkid uint32) {
	t.Helper()
	off := int64(2*fixtureBlockSize) + int64(blkid/8)
	cur, err := img.ReadExact(off, 1)
	if err != nil {
		t.Fatal(err)
	}
	cur[0] |= 1 << uint(blkid%8)
	if err := img.WriteExact(off, cur); err != nil {
		t.Fatal(err)
	}
}

// TestScanGroupMarksHeadBlocksValid covers spec.md §4.9 step 1: every block
// under head_count = bitmap_offset + inode_block_count + 2 is valid
// regardless of its contents.
func TestScanGroupMarksHeadBlocksValid(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	an := NewAnalyzer(sb, t.TempDir()+"/checkpoint")
	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := an.scanGroup(bg); err != nil {
		t.Fatal(err)
	}
	headCount := bg.BitmapOffset() + uint32(bg.InodeBlockCount()) + 2
	for b := uint32(0); b < headCount; b++ {
		if ok, _ := an.ValidBlocks().Bit(int(b)); !ok {
			t.Errorf("head block %d not marked valid", b)
		}
	}
}

// TestScanGroupFindsDirectoryShapedBlockNotReferencedByAnyInode proves the
// classification in step 2 comes from direct parsing of every block, not
// from walking the inode table: block 6 here is structurally a directory
// block but no inode's EachBlock ever yields it.
func TestScanGroupFindsDirectoryShapedBlockNotReferencedByAnyInode(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	writeDirBlock(t, img, sb, 6, "orphan", 2)
	setBlockUsed(t, img, 6)

	an := NewAnalyzer(sb, t.TempDir()+"/checkpoint")
	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := an.scanGroup(bg); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range an.DirectoryBlockIDs() {
		if id == 6 {
			found = true
		}
	}
	if !found {
		t.Fatalf("block 6 should be classified directory-shaped by direct parsing, got %v", an.DirectoryBlockIDs())
	}
}

// TestScanGroupSkipsInodeWithSizeMismatch covers spec.md §4.9 step 3's size
// bound: an inode whose size_lo doesn't fit its walked block count is not
// recorded as a validated inode.
func TestScanGroupSkipsInodeWithSizeMismatch(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	// Inode 2 already points at exactly one block (block 5), so n==1 and
	// n*block_size==4096. Inflate size_lo past that so it no longer
	// satisfies (n-1)*bs < size_lo <= n*bs.
	inoOff := int64(4*fixtureBlockSize + 1*GoodOldInodeSize)
	sizeLo := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeLo, fixtureBlockSize*3)
	if err := img.WriteExact(inoOff+4, sizeLo); err != nil {
		t.Fatal(err)
	}

	an := NewAnalyzer(sb, t.TempDir()+"/checkpoint")
	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := an.scanGroup(bg); err != nil {
		t.Fatal(err)
	}
	if an.validInodes[2] {
		t.Fatal("inode 2 should have been rejected for a size_lo/block-count mismatch")
	}
}

// TestScanGroupLeavesDirectoryBlocksUnmarkedValid covers spec.md §4.9 step
// 3's "if ... the inode is not a directory" gate: a directory inode's own
// data blocks are recorded as directory-shaped but never added to the valid
// bitmap through the inode-walk branch.
func TestScanGroupLeavesDirectoryBlocksUnmarkedValid(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	an := NewAnalyzer(sb, t.TempDir()+"/checkpoint")
	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := an.scanGroup(bg); err != nil {
		t.Fatal(err)
	}
	if ok, _ := an.ValidBlocks().Bit(fixtureRootDataBlkid); ok {
		t.Fatal("root directory's own data block should not be marked valid by the inode-walk branch")
	}
	ids := an.DirectoryBlockIDs()
	if len(ids) != 1 || ids[0] != fixtureRootDataBlkid {
		t.Fatalf("DirectoryBlockIDs() = %v, want [%d]", ids, fixtureRootDataBlkid)
	}
}

// TestScanGroupSkipsFreeBlockEvenIfDirectoryShaped covers spec.md §4.7's
// block-level rule carried into §4.9 step 2: a block marked free in the
// group's data bitmap fails Validate and is never recorded directory-shaped,
// even when its bytes would otherwise tile cleanly.
func TestScanGroupSkipsFreeBlockEvenIfDirectoryShaped(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	writeDirBlock(t, img, sb, 6, "x", 2)
	// Deliberately leave block 6's data-bitmap bit at 0 (free).

	an := NewAnalyzer(sb, t.TempDir()+"/checkpoint")
	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := an.scanGroup(bg); err != nil {
		t.Fatal(err)
	}
	for _, id := range an.DirectoryBlockIDs() {
		if id == 6 {
			t.Fatal("block 6 is marked free and should not classify as directory-shaped")
		}
	}
}
