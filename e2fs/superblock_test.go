package e2fs

import "testing"

func TestSuperblockValidatePristineImage(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	if errs := sb.Validate(true); len(errs) != 0 {
		t.Fatalf("pristine fixture should validate clean, got: %v", errs)
	}
	if sb.BlockSize() != fixtureBlockSize {
		t.Errorf("BlockSize() = %d, want %d", sb.BlockSize(), fixtureBlockSize)
	}
	if sb.BGCount() != 1 {
		t.Errorf("BGCount() = %d, want 1", sb.BGCount())
	}
}

func TestSuperblockValidateCatchesBadMagic(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	if err := img.WriteExact(sb.Offset()+56, []byte{0xAD, 0xDE}); err != nil {
		t.Fatal(err)
	}
	sb.Invalidate()
	errs := sb.Validate(true)
	if len(errs) == 0 {
		t.Fatal("expected a bad-magic finding")
	}
}

func TestSuperblockValidateStopsAtFirstWhenNotAll(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	// Corrupt both magic and blocks_per_group; all=false should report
	// only the first finding (magic, checked first).
	if err := img.WriteExact(sb.Offset()+56, []byte{0xAD, 0xDE}); err != nil {
		t.Fatal(err)
	}
	if err := img.WriteExact(sb.Offset()+32, []byte{0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	sb.Invalidate()
	errs := sb.Validate(false)
	if len(errs) != 1 {
		t.Fatalf("all=false should stop at the first finding, got %d: %v", len(errs), errs)
	}
}

func TestSparseSuperBgs(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	// Single-group fixture: regardless of the SPARSE_SUPER bit, bg 0 always
	// carries a superblock backup (spec.md §8 scenario 2's bg 0 case).
	backups, err := sb.SuperBgs()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].BG.BG() != 0 {
		t.Fatalf("SuperBgs() = %v, want exactly bg 0", backups)
	}
}

func TestValidBlkidZero(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	if !sb.ValidBlkid(0, true) {
		t.Error("ValidBlkid(0, true) should be true")
	}
	if sb.ValidBlkid(0, false) {
		t.Error("ValidBlkid(0, false) should be false")
	}
}

func TestInodeOutOfRange(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	if _, err := sb.Inode(0); err == nil {
		t.Fatal("inode 0 should fail")
	} else if _, ok := err.(*InodeOutOfRange); !ok {
		t.Fatalf("expected *InodeOutOfRange, got %T", err)
	}
	if _, err := sb.Inode(sb.InodeCount()); err == nil {
		t.Fatal("inode_count should fail")
	} else if _, ok := err.(*InodeOutOfRange); !ok {
		t.Fatalf("expected *InodeOutOfRange, got %T", err)
	}
}

func TestRootInodeIsDirectory(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	if !ino.IsDir() {
		t.Error("inode 2 should be a directory")
	}
	free, err := sb.InodeFree(2)
	if err != nil {
		t.Fatal(err)
	}
	if free {
		t.Error("inode 2 should be marked used")
	}
}
