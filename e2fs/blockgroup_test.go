package e2fs

import "testing"

func TestBlockGroupLayoutConsistency(t *testing.T) {
	// Invariant (spec.md §8): bitmap_offset(g) + 2 + inode_block_count ==
	// inode_table_blkid(g) - g*blocks_per_group + 1.
	img, sb := newFixtureImage(t)
	defer img.Close()

	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	lhs := bg.BitmapOffset() + 2 + uint32(bg.InodeBlockCount())
	rhs := bg.InodeTableBlkid() - bg.BG()*sb.BlocksPerGroup() + 1
	if lhs != rhs {
		t.Fatalf("layout invariant violated: %d != %d", lhs, rhs)
	}
}

func TestBlockGroupDescriptorMatchesLayout(t *testing.T) {
	// spec.md §8: for every descriptor d of group g, d.block_bitmap_lo ==
	// bitmap_offset(g) + g*blocks_per_group.
	img, sb := newFixtureImage(t)
	defer img.Close()

	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	descs, err := bg.Descriptors()
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	want := bg.BitmapOffset() + bg.BG()*sb.BlocksPerGroup()
	if descs[0].BlockBitmapLo() != want {
		t.Errorf("block_bitmap_lo = %d, want %d", descs[0].BlockBitmapLo(), want)
	}
}

func TestBlkidxFreeReflectsBitmap(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	used, err := bg.BlkidxFree(fixtureRootDataBlkid)
	if err != nil {
		t.Fatal(err)
	}
	if used {
		t.Error("root's data block should not be free")
	}
	free, err := bg.BlkidxFree(fixtureRootDataBlkid + 1)
	if err != nil {
		t.Fatal(err)
	}
	if !free {
		t.Error("an unused block should be free")
	}
}

func TestEachDataBlkidStaysWithinBounds(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range bg.EachDataBlkid() {
		if b < bg.InodeTableBlkid()+uint32(bg.InodeBlockCount()) || b >= sb.BlocksCountLo() {
			t.Fatalf("data block %d out of expected range", b)
		}
	}
}
